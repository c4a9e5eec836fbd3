package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/cryoetdb/cryoetdb/pkg/metrics"
	"github.com/cryoetdb/cryoetdb/pkg/query"
)

// Server exposes the query façade over HTTP
type Server struct {
	Querier query.Querier
	Health  HealthChecker
	Metrics *metrics.PipelineMetrics
	Logger  *slog.Logger
	Router  *mux.Router
	srv     *http.Server
}

// NewServer builds a Server listening on addr. Routes are added by the
// endpoints package.
func NewServer(
	querier query.Querier,
	health HealthChecker,
	m *metrics.PipelineMetrics,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter().UseEncodedPath()
	srv := &http.Server{
		Handler:           handlers.LoggingHandler(slogWriter{logger}, router),
		Addr:              addr,
		WriteTimeout:      15 * time.Second,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		Querier: querier,
		Health:  health,
		Metrics: m,
		Logger:  logger,
		Router:  router,
		srv:     srv,
	}
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Handler returns the root handler including access logging.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	return s.ignoreClosed(s.srv.ListenAndServe())
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	return s.ignoreClosed(s.srv.Serve(l))
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// slogWriter feeds the combined access log lines into the structured logger.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	line := p
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	w.logger.Info(string(line), "component", "http")
	return len(p), nil
}
