package endpoints

import (
	"github.com/cryoetdb/cryoetdb/pkg/server"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	RegisterStatusEndpoints(srv)
	RegisterTomogramsEndpoints(srv)
	RegisterAnnotationsEndpoints(srv)
	RegisterMetricsEndpoint(srv)
}
