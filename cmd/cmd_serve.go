package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rubric/internal/adapters/http/api"
	"github.com/okian/rubric/internal/adapters/http/swagger"
	service "github.com/okian/rubric/internal/app"
	"github.com/okian/rubric/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCommand(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve records, statistics and normalization over HTTP",
		Long: `Serve records, statistics and normalization over HTTP.

Routes:
  GET  /records               ranked records
  GET  /records/{id}          one record
  GET  /records/{id}/history  normalization audits of one record
  GET  /stats                 cohort distribution against the course target
  POST /normalize             run normalization (optional {"mean","min","max"} body)
  GET  /metrics               Prometheus metrics
  GET  /healthz               liveness
  GET  /openapi.yaml          API description`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = c.cfg.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           c.handler(ctx),
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}
			return c.serve(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: addr)")
	return cmd
}

// handler builds the HTTP mux over the active course. The audit journal, when
// configured, is closed with ctx.
func (c *cli) handler(ctx context.Context) http.Handler {
	course := c.active()
	v := c.vault()

	nopts := []service.NormalizerOption{
		service.WithSkipTolerance(c.cfg.SkipTolerance),
		service.WithNormalizerLogger(c.log),
	}
	sopts := []service.Option{
		service.WithTolerance(c.cfg.SkipTolerance),
		service.WithLogger(c.log.Named("service")),
	}
	if j := c.journal(ctx); j != nil {
		go func() {
			<-ctx.Done()
			_ = j.Close()
		}()
		nopts = append(nopts, service.WithJournal(j))
		sopts = append(sopts, service.WithHistory(j))
	}
	svc := service.New(v, service.NewNormalizer(service.VaultStores(v), nopts...), c.cfg.Course, course.Target(), sopts...)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithLogger(c.log.Named("http"))).Register(ctx, mux)
	return mux
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func (c *cli) serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		c.log.Info(ctx, "starting HTTP server", logger.String("addr", srv.Addr), logger.String("course", c.cfg.Course))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	c.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	c.log.Info(ctx, "server stopped")
	return nil
}
