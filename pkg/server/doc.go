// Package server provides the HTTP server for the read-only query API.
//
// The server wraps a gorilla/mux router with combined access logging fed
// into slog. Routes are registered by the endpoints subpackage:
//
//	srv := server.NewServer(querier, server.NewDBHealth(db), m, logger, ":8080")
//	endpoints.RegisterAll(srv)
//	err := srv.Start()
//
// # Endpoints
//
//   - GET / - service and database status
//   - GET /tomograms/{name}/count - annotation count of one tomogram
//   - GET /tomograms/rich?min_annotations=N - tomograms with at least N annotations
//   - GET /annotations/{id} - volume and coordinates of one annotation
//   - GET /metrics - Prometheus exposition
//
// # Authentication
//
// The middleware subpackage provides optional HS256 bearer-token auth:
//
//	srv.Router.Use(middleware.NewBearerAuth(secret, "/", "/metrics").Middleware)
package server
