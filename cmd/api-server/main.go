package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"osusume/internal/auth"
	"osusume/internal/browse"
	"osusume/internal/catalog"
	"osusume/internal/recommend"
	synchub "osusume/internal/sync"
	"osusume/pkg/database"
	"osusume/pkg/logger"
	"osusume/pkg/metrics"
	"osusume/pkg/utils"
)

type app struct {
	router   *gin.Engine
	hub      *synchub.Hub
	registry *browse.Registry
	tcp      *synchub.Server
}

func newApp(cfg *utils.Config, db *sql.DB, log zerolog.Logger) *app {
	repo := catalog.NewRepo(db, log)
	repo.PopularThreshold = cfg.Catalog.PopularThreshold
	repo.Limit = cfg.Catalog.Limit

	engine := recommend.NewEngine(
		recommend.NewSimilarityFactory(cfg.Recommend.ModelPath),
		repo,
		recommend.Config{
			Weight:          cfg.Recommend.Weight,
			K:               cfg.Recommend.K,
			BreakerFailures: cfg.Recommend.BreakerFailures,
			BreakerTimeout:  cfg.Recommend.BreakerTimeout,
		},
		log,
	)

	hub := synchub.NewHub(log)
	registry := browse.NewRegistry(browse.Deps{
		Store:  repo,
		Engine: engine,
		Publisher: browse.PublisherFunc(func(ev browse.Event) {
			metrics.SessionEvents.WithLabelValues(ev.Type).Inc()
			hub.Publish(ev)
		}),
		Logger:       log,
		PopularLimit: cfg.Catalog.Limit,
		SearchLimit:  cfg.Catalog.Limit,
	})
	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}
	tcp := synchub.NewServer(cfg.Server.TCPAddr, hub, func(ctx context.Context, token string) (string, error) {
		id, err := tokens.SessionID(token)
		if err != nil {
			return "", err
		}
		if !registry.Has(ctx, id) {
			return "", browse.ErrSessionNotFound
		}
		return id, nil
	}, log)

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(logger.Component("http")))

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Database.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{
			"model":       engine.Status().String(),
			"sessions":    registry.Len(),
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		}
		if err := repo.Ping(ctx); err != nil {
			body["status"] = "not_ready"
			body["db_error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		body["db"] = "ok"
		c.JSON(http.StatusOK, body)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Catalog (public)
	catalog.NewHandler(repo).RegisterRoutes(router.Group("/anime"))

	// Browse sessions
	browse.NewHandler(registry, tokens).RegisterRoutes(router.Group(""))

	// Event stream for the caller's session
	router.GET("/ws", auth.AuthMiddleware(tokens, registry.Has), synchub.WSHandler(hub))

	return &app{router: router, hub: hub, registry: registry, tcp: tcp}
}

func main() {
	cfg, err := utils.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.Component("api-server")
	gin.SetMode(gin.ReleaseMode)

	db := database.MustOpen(cfg.DB())
	defer db.Close()

	a := newApp(cfg, db, *logger.L())
	defer a.registry.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.tcp.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.registry.RunReaper(gctx, time.Minute, cfg.Server.SessionIdle)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("servers stopped")
}
