package endpoints

import (
	"context"
	"net/http"
	"time"

	"github.com/cryoetdb/cryoetdb/pkg/server"
)

// Version is reported by the status endpoint. Overridden at link time.
var Version = "0.1.0"

// StatusResponse is the body of GET /
type StatusResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// RegisterStatusEndpoints registers the status endpoint
func RegisterStatusEndpoints(s *server.Server) {
	s.Router.HandleFunc("/", handleStatus(s.Health)).Methods("GET")
}

func handleStatus(health server.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{Status: "ok", Version: Version, Database: "unknown"}
		if health == nil {
			respondWithJSON(w, http.StatusOK, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := health.CheckConnectivity(ctx); err != nil {
			resp.Status = "error"
			resp.Database = "unreachable"
			respondWithJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
		respondWithJSON(w, http.StatusOK, resp)
	}
}
