package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/handlers/asset"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/middleware"
	natsclient "github.com/File-Sharing-BondBridg/Asset-Service/internal/nats"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	shutdownTimeout    = 30 * time.Second
	rateLimitPruneTick = 10 * time.Minute
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, background workers and the retention sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), c)
		},
	}
}

func serve(parent context.Context, c *cli) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := c.cfg

	if cfg.Tracing.Enabled {
		tracer.Start(tracer.WithService(cfg.Tracing.ServiceName), tracer.WithEnv(cfg.Env))
		defer tracer.Stop()
	}

	a, err := newApp(ctx, cfg, c.log)
	if err != nil {
		return err
	}
	defer a.close()

	if a.pool != nil {
		// Queued tasks are drained on shutdown, so workers must outlive ctx.
		a.pool.Start(context.Background(), a.assets.DeriveAndRecord)
	}
	if a.nats != nil {
		routes := natsclient.Routes(natsclient.NewHandlers(a.assets), cfg.Thumbnail.Mode == "nats")
		if err := a.nats.SubscribeAll(routes); err != nil {
			return err
		}
	}
	if cfg.Retention.Period > 0 && cfg.Retention.SweepInterval > 0 {
		go a.sweeper.Run(ctx, cfg.Retention.SweepInterval, cfg.Retention.Period)
	}
	if cfg.RateLimit.Requests > 0 {
		go a.pruneRateLimits(ctx)
	}

	authn, err := newAuthenticator(ctx, c)
	if err != nil {
		return err
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(gintrace.Middleware(cfg.Tracing.ServiceName))
	}
	r.MaxMultipartMemory = cfg.Server.MaxMultipartMemory
	api.RegisterRoutes(r,
		asset.NewHandler(a.assets, a.log, cfg.Upload.MaxSizeBytes),
		middleware.RequireAuth(authn),
		middleware.RateLimit(a.limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, a.log),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info(ctx, "server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.log.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	c.log.Info(context.Background(), "server exited")
	return nil
}

func newAuthenticator(ctx context.Context, c *cli) (middleware.Authenticator, error) {
	if c.cfg.Auth.IssuerURL != "" {
		a, err := middleware.NewOIDCAuthenticator(ctx, c.cfg.Auth.IssuerURL, c.cfg.Auth.ClientID)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	c.log.Warn(ctx, "no OIDC issuer configured, trusting identity header", "header", c.cfg.Auth.IdentityHeader)
	return middleware.NewHeaderAuthenticator(c.cfg.Auth.IdentityHeader), nil
}

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneRateLimits drops expired counter windows until ctx is done.
func (a *app) pruneRateLimits(ctx context.Context) {
	p, ok := a.limiter.(pruner)
	if !ok {
		return
	}
	ticker := time.NewTicker(rateLimitPruneTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * a.cfg.RateLimit.Window)
			if n, err := p.Prune(ctx, cutoff); err != nil {
				a.log.Warn(ctx, "rate limit prune failed", "error", err)
			} else if n > 0 {
				a.log.Debug(ctx, "pruned rate limit windows", "count", n)
			}
		}
	}
}
