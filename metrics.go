package rpcgate

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rpcgate"

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})

	ActiveClientWSConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_client_ws_connections",
		Help:      "Number of active client-facing websocket connections.",
	})

	ActiveUpstreamWSConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_upstream_ws_connections",
		Help:      "Number of active upstream websocket connections.",
	})

	RPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rpc_requests_total",
		Help:      "Total number of JSON-RPC requests processed.",
	}, []string{"network", "method"})

	BatchRPCShortCircuitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "batch_short_circuits_total",
		Help:      "Total number of batch requests rejected by the first failing element.",
	})

	HTTPResponseCodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_response_codes_total",
		Help:      "Total HTTP responses by status code.",
	}, []string{"code"})

	RateLimitTakeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limit_take_errors_total",
		Help:      "Total errors encountered taking from the rate limiter's backing store.",
	})

	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rejections_total",
		Help:      "Total pipeline rejections by stage and reason.",
	}, []string{"stage", "network", "code"})

	WSMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ws_messages_total",
		Help:      "Total websocket messages forwarded by direction.",
	}, []string{"direction"})
)

func RecordWSMessage(direction string) {
	WSMessagesTotal.WithLabelValues(direction).Inc()
}

// RecordRejection is called by Pipeline.Run for every stage that rejects
// a request; it increments the counter and emits a structured log line
// naming the stage, consumer, network, and reason, per the error
// handling design's "every rejection records stage name and reason".
func RecordRejection(stage, network, consumer string, err *RPCErr) {
	code := "unknown"
	if err != nil {
		code = err.Message
	}
	RejectionsTotal.WithLabelValues(stage, network, code).Inc()
	log.Info("request rejected", "stage", stage, "network", network, "consumer", consumer, "reason", code)
}
