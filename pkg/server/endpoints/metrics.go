package endpoints

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryoetdb/cryoetdb/pkg/server"
)

// RegisterMetricsEndpoint exposes the pipeline registry at /metrics. It is a
// no-op when the server has no metrics.
func RegisterMetricsEndpoint(s *server.Server) {
	reg := s.Metrics.Registry()
	if reg == nil {
		return
	}
	s.Router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:      reg,
		ErrorHandling: promhttp.HTTPErrorOnError,
	})).Methods("GET")
}
