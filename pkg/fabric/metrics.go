package fabric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterGauges exports the ConnectionManager's live counts as Prometheus
// gauges, read on every scrape rather than pushed on every connect/
// disconnect — a GaugeFunc needs no Set() calls scattered through Connect/
// Disconnect and can't drift out of sync with the registry it reads from.
// The composition root calls this once after NewServer; tests that never
// call it simply don't touch the registry, so running many *Server values
// in one test binary never risks a duplicate-collector panic.
func (s *Server) RegisterGauges(reg prometheus.Registerer) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "translation_relay_fabric_active_sessions",
			Help: "Sessions with at least one live connection",
		},
		func() float64 { return float64(s.manager.ActiveSessionCount()) },
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "translation_relay_fabric_active_connections",
			Help: "Live WebSocket connections across all sessions",
		},
		func() float64 { return float64(s.manager.TotalConnections()) },
	)
}
