package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_tcp_connections_total",
		Help: "Total de conexiones TCP aceptadas",
	})
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_feed_reconnects_total",
		Help: "Reconexiones al feed de eventos en vivo",
	})
	UplinksRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_uplinks_received_total",
		Help: "Total de uplinks recibidos por fPort",
	}, []string{"f_port"})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_decode_errors_total",
		Help: "Payloads con hex malformado",
	})
	ShortPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_short_payloads_total",
		Help: "Frames conocidos más cortos que su longitud mínima",
	})
	ImplausibleRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_implausible_records_total",
		Help: "Registros decodificados fuera de rango físico",
	})
	DiagnosticsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_diagnostics_total",
		Help: "Mensajes de diagnóstico generados",
	})
	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_duplicates_total",
		Help: "Uplinks descartados por duplicados",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_sink_errors_total",
		Help: "Errores al entregar el trackeo a un destino",
	}, []string{"sink"})
	RedisSetErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_redis_set_errors_total",
		Help: "Errores al escribir estados en Redis",
	})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_decode_latency_seconds",
		Help:    "Latencia de decodificación por uplink",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// Handler expone el registro por defecto para /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
