package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/query"
	"github.com/cryoetdb/cryoetdb/pkg/server"
	"github.com/cryoetdb/cryoetdb/pkg/server/endpoints"
	"github.com/cryoetdb/cryoetdb/pkg/server/middleware"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only query API",
	Long: `Run the read-only query API.

Answers are cached for cache_ttl seconds. Prometheus metrics are served at
/metrics. When api_jwt_secret is set every route except / and /metrics
requires a bearer token issued by "cryoetctl token".

Example:
  cryoetctl serve
  cryoetctl serve --listen 127.0.0.1:9000`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			a.cfg.ListenAddress = listen
		}
		a.exit(serve(cmd.Context(), a))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "listen address (overrides listen_address)")
}

func serve(ctx context.Context, a *app) error {
	return withDatabase(ctx, a, func(database *gorm.DB) error {
		querier := query.NewCached(query.New(database, a.metrics), a.cfg.CacheTTLDuration(), a.metrics)
		s := server.NewServer(
			querier,
			server.NewDBHealth(database),
			a.metrics,
			logging.ForComponent(a.logger, "server"),
			a.cfg.ListenAddress,
		)
		if a.cfg.APIJWTSecret != "" {
			s.Router.Use(apiAuth(a).Middleware)
		}
		endpoints.RegisterAll(s)

		errCh := make(chan error, 1)
		go func() { errCh <- s.Start() }()
		a.logger.Info("serving query API", "address", s.Addr())
		printOK("Serving at http://%s", s.Addr())

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	})
}

func apiAuth(a *app) *middleware.BearerAuth {
	return middleware.NewBearerAuth(a.cfg.APIJWTSecret, "/", "/metrics")
}
