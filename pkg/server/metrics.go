package server

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crusader_server_sessions_active",
		Help: "Number of active (non-lingering) test sessions.",
	})
	sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crusader_server_sessions_total",
		Help: "Total number of test sessions accepted.",
	})
	sessionsOverloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crusader_server_sessions_overloaded_total",
		Help: "Total number of NewClient requests rejected with overload=true.",
	})
	discoveryRepliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crusader_server_discovery_replies_total",
		Help: "Total number of DiscoveryHello requests answered.",
	})
)

func init() {
	prometheus.MustRegister(sessionsActive, sessionsTotal, sessionsOverloaded, discoveryRepliesTotal)
}
