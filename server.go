package rpcgate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const defaultBodySizeLimit = 1 * opt.MiB

// Upstream dials the single configured backend for a route. Load
// balancing across multiple upstreams is out of scope.
type Upstream struct {
	RouteID  string
	HTTPURL  string
	WSURL    string
	Endpoint string // host:port of the upstream; breakers are keyed by the Redis endpoint, not this field
}

// Server is the gateway's HTTP and websocket front door: it builds a
// per-request RPCContext, runs it through the Pipeline, and either
// returns the JSON-RPC response (HTTP) or hands off to WSProxy (WS).
type Server struct {
	routes     map[string]*routeBinding
	maxBody    int64
	upgrader   *websocket.Upgrader
	httpClient *http.Client
}

type routeBinding struct {
	cfg      RouteConfig
	pipeline *Pipeline
	upstream Upstream
}

func NewServer(maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = defaultBodySizeLimit
	}
	return &Server{
		routes:  make(map[string]*routeBinding),
		maxBody: maxBody,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Server) RegisterRoute(cfg RouteConfig, pipeline *Pipeline, upstream Upstream) {
	s.routes[cfg.RouteID] = &routeBinding{cfg: cfg, pipeline: pipeline, upstream: upstream}
}

func (s *Server) RPCListenAndServe(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/{routeID}", s.handleRPC).Methods("POST")
	handler := cors.AllowAll().Handler(r)
	log.Info("starting RPC listener", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

func (s *Server) WSListenAndServe(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/{routeID}", s.handleWS)
	log.Info("starting WS listener", "addr", addr)
	return http.ListenAndServe(addr, r)
}

func (s *Server) binding(r *http.Request) (*routeBinding, bool) {
	routeID := mux.Vars(r)["routeID"]
	b, ok := s.routes[routeID]
	return b, ok
}

func (s *Server) newContext(r *http.Request, cfg RouteConfig) *RPCContext {
	rc := NewRPCContext(r.Context(), uuid.NewString())
	rc.Host = r.Host
	rc.NetworkOverride = cfg.NetworkOverride
	rc.XForwardedFor = r.Header.Get("X-Forwarded-For")
	rc.Auth = r.Header.Get("Authorization")
	rc.Consumer = consumerFromRequest(r)
	return rc
}

// defaultSecondsQuota/defaultMonthlyQuota are the fallback per-consumer
// limits used when the auth layer (stood in here by headers; Non-goal:
// API-key validation is not performed by this gateway) supplies none.
const (
	defaultSecondsQuota = 100
	defaultMonthlyQuota = 10_000
)

// consumerFromRequest stands in for an upstream auth layer: it resolves
// a ConsumerIdentity, including its per-second and monthly compute-unit
// quotas, from request headers. Tier is not set here -- it is derived
// from MonthlyQuota by WhitelistStage, per spec.md §3.
func consumerFromRequest(r *http.Request) ConsumerIdentity {
	name := r.Header.Get("X-Consumer-Name")
	if name == "" {
		name = "anonymous"
	}

	secondsQuota := float64(defaultSecondsQuota)
	if v := r.Header.Get("X-Consumer-Seconds-Quota"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			secondsQuota = f
		}
	}
	monthlyQuota := float64(defaultMonthlyQuota)
	if v := r.Header.Get("X-Consumer-Monthly-Quota"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			monthlyQuota = f
		}
	}

	return ConsumerIdentity{
		Name:         name,
		SecondsQuota: secondsQuota,
		MonthlyQuota: monthlyQuota,
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	binding, ok := s.binding(r)
	if !ok {
		s.writeRPCError(w, nil, ErrNetworkNotFoundFor(mux.Vars(r)["routeID"]))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		s.writeRPCError(w, nil, ErrParseErr)
		return
	}
	if int64(len(body)) > s.maxBody {
		s.writeRPCError(w, nil, ErrRequestBodyTooLarge)
		return
	}

	rc := s.newContext(r, binding.cfg)
	parsed, isBatch, perr := ParseBody(body)
	if perr != nil {
		s.writeRPCError(w, nil, perr)
		return
	}
	rc.Parsed = parsed
	rc.IsBatch = isBatch

	if rejErr := binding.pipeline.Run(rc); rejErr != nil {
		s.setQuotaHeaders(w, rc)
		s.writeRPCError(w, firstID(parsed), rejErr)
		HTTPResponseCodesTotal.WithLabelValues(strconv.Itoa(rejErr.HTTPErrorCode)).Inc()
		return
	}

	res, ferr := s.forward(rc, binding, body, isBatch)
	if ferr != nil {
		s.writeRPCError(w, firstID(parsed), ErrBackendUnavailable)
		return
	}

	s.setQuotaHeaders(w, rc)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
	HTTPRequestDuration.WithLabelValues(binding.cfg.RouteID, "200").Observe(time.Since(start).Seconds())
}

// setQuotaHeaders surfaces the RateLimiter/MonthlyLimiter stage results
// as the documented X-RateLimit-*/X-Monthly-* response headers, on both
// the success and the rejection path.
func (s *Server) setQuotaHeaders(w http.ResponseWriter, rc *RPCContext) {
	if rl := rc.RateLimit; rl != nil {
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatFloat(rl.Limit, 'f', -1, 64))
		h.Set("X-RateLimit-Remaining", strconv.FormatFloat(rl.Remaining, 'f', -1, 64))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
	}
	if mq := rc.MonthlyQuota; mq != nil {
		h := w.Header()
		h.Set("X-Monthly-Quota", strconv.FormatFloat(mq.Limit, 'f', -1, 64))
		h.Set("X-Monthly-Remaining", strconv.FormatFloat(mq.Remaining, 'f', -1, 64))
	}
}

func firstID(parsed []ParsedRPC) json.RawMessage {
	if len(parsed) == 0 {
		return json.RawMessage("null")
	}
	return parsed[0].ID
}

func (s *Server) forward(rc *RPCContext, binding *routeBinding, body []byte, isBatch bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(rc.Context(), http.MethodPost, binding.upstream.HTTPURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	RPCRequestsTotal.WithLabelValues(string(rc.Network), firstMethod(rc)).Inc()
	return io.ReadAll(res.Body)
}

func firstMethod(rc *RPCContext) string {
	if len(rc.Parsed) == 0 {
		return ""
	}
	return rc.Parsed[0].Method
}

func (s *Server) writeRPCError(w http.ResponseWriter, id json.RawMessage, rpcErr *RPCErr) {
	if id == nil {
		id = json.RawMessage("null")
	}
	res := NewRPCErrorRes(id, rpcErr)
	b, err := res.MarshalJSON()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	code := rpcErr.HTTPErrorCode
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	binding, ok := s.binding(r)
	if !ok {
		http.Error(w, "unknown route", http.StatusNotFound)
		return
	}

	upstreamConn, _, err := websocket.DefaultDialer.DialContext(r.Context(), binding.upstream.WSURL, nil)
	if err != nil {
		log.Error("failed dialing upstream websocket", "route", binding.cfg.RouteID, "err", err)
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return
	}

	clientConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		upstreamConn.Close()
		log.Error("failed upgrading client websocket", "err", err)
		return
	}

	rc := s.newContext(r, binding.cfg)
	proxy := NewWSProxy(binding.pipeline, clientConn, upstreamConn, rc)
	if err := proxy.Run(context.Background()); err != nil {
		log.Debug("websocket proxy closed", "route", binding.cfg.RouteID, "err", err)
	}
}
