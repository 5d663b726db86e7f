package rpcgate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWSReadTimeout  = 30 * time.Second
	defaultWSWriteTimeout = 10 * time.Second
)

// WSProxy man-in-the-middles a websocket connection. It is handed both
// sockets by Server.handleWS, which dials the upstream FIRST and only
// upgrades the client connection once the upstream dial succeeds, so a
// client never gets accepted against a dead backend. Every
// client->upstream text frame is re-run through the full
// pipeline (parser through rate limiting); upstream->client frames are
// forwarded verbatim.
type WSProxy struct {
	pipeline *Pipeline

	clientConn  *websocket.Conn
	upstreamConn *websocket.Conn

	clientWriteMu   sync.Mutex
	upstreamWriteMu sync.Mutex

	rc *RPCContext
}

func NewWSProxy(pipeline *Pipeline, clientConn, upstreamConn *websocket.Conn, rc *RPCContext) *WSProxy {
	return &WSProxy{pipeline: pipeline, clientConn: clientConn, upstreamConn: upstreamConn, rc: rc}
}

// Run pumps both directions concurrently and returns once either side
// closes, cancelling the other side's pump via the shared errgroup
// context so no paired socket or goroutine leaks.
func (p *WSProxy) Run(ctx context.Context) error {
	ActiveClientWSConns.Inc()
	ActiveUpstreamWSConns.Inc()
	defer ActiveClientWSConns.Dec()
	defer ActiveUpstreamWSConns.Dec()
	defer p.clientConn.Close()
	defer p.upstreamConn.Close()

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		// Closing both sockets unblocks whichever pump is still reading.
		<-gctx.Done()
		p.clientConn.Close()
		p.upstreamConn.Close()
	}()
	g.Go(func() error { return p.clientToUpstream(gctx) })
	g.Go(func() error { return p.upstreamToClient(gctx) })
	return g.Wait()
}

func (p *WSProxy) clientToUpstream(ctx context.Context) error {
	for {
		_ = p.clientConn.SetReadDeadline(time.Now().Add(defaultWSReadTimeout))
		msgType, body, err := p.clientConn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			if werr := p.writeUpstream(msgType, body); werr != nil {
				return werr
			}
			continue
		}

		frameCtx := p.rc.WithContext(ctx)
		parsed, isBatch, perr := ParseBody(body)
		if perr != nil {
			if werr := p.writeClientError(nil, perr); werr != nil {
				return werr
			}
			continue
		}
		frameCtx.Parsed = parsed
		frameCtx.IsBatch = isBatch

		if rejErr := p.pipeline.Run(frameCtx); rejErr != nil {
			id := json.RawMessage("null")
			if len(parsed) > 0 {
				id = parsed[0].ID
			}
			if werr := p.writeClientError(id, rejErr); werr != nil {
				return werr
			}
			continue
		}

		if err := p.writeUpstream(websocket.TextMessage, body); err != nil {
			return err
		}
		RecordWSMessage("client_to_upstream")
	}
}

func (p *WSProxy) upstreamToClient(ctx context.Context) error {
	for {
		_ = p.upstreamConn.SetReadDeadline(time.Now().Add(defaultWSReadTimeout))
		msgType, body, err := p.upstreamConn.ReadMessage()
		if err != nil {
			return err
		}
		if err := p.writeClient(msgType, body); err != nil {
			return err
		}
		RecordWSMessage("upstream_to_client")
	}
}

func (p *WSProxy) writeUpstream(msgType int, body []byte) error {
	p.upstreamWriteMu.Lock()
	defer p.upstreamWriteMu.Unlock()
	_ = p.upstreamConn.SetWriteDeadline(time.Now().Add(defaultWSWriteTimeout))
	return p.upstreamConn.WriteMessage(msgType, body)
}

func (p *WSProxy) writeClient(msgType int, body []byte) error {
	p.clientWriteMu.Lock()
	defer p.clientWriteMu.Unlock()
	_ = p.clientConn.SetWriteDeadline(time.Now().Add(defaultWSWriteTimeout))
	return p.clientConn.WriteMessage(msgType, body)
}

func (p *WSProxy) writeClientError(id []byte, rpcErr *RPCErr) error {
	res := NewRPCErrorRes(id, rpcErr)
	b, err := res.MarshalJSON()
	if err != nil {
		log.Error("failed marshalling ws error response", "err", err)
		return err
	}
	return p.writeClient(websocket.TextMessage, b)
}
