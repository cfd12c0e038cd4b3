package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idp_messages_processed_total",
			Help: "Messages processed successfully, by kind",
		},
		[]string{"kind"},
	)

	MessagesMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_messages_malformed_total",
		Help: "Messages skipped due to a missing or mistyped required field",
	})

	MessagesUnknownKind = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_messages_unknown_kind_total",
		Help: "Messages skipped due to an unrecognized kind",
	})

	// Output metrics
	PointsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_points_emitted_total",
		Help: "Normalized points emitted",
	})

	PayloadsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_payloads_emitted_total",
		Help: "Output payloads produced",
	})

	// Delivery metrics
	PayloadsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_payloads_delivered_total",
		Help: "Payloads accepted by the billing API or queue",
	})

	DeliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idp_delivery_errors_total",
		Help: "Payload deliveries that failed permanently",
	})

	// Ingress metrics
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "idp_websocket_clients",
		Help: "Connected websocket delivery subscribers",
	})
)

// Register adds all collectors to the default registry. Call once on
// startup from the binary that serves /metrics.
func Register() {
	prometheus.MustRegister(
		MessagesProcessed,
		MessagesMalformed,
		MessagesUnknownKind,
		PointsEmitted,
		PayloadsEmitted,
		PayloadsDelivered,
		DeliveryErrors,
		WebsocketClients,
	)
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
