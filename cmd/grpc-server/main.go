package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"osusume/internal/catalog"
	"osusume/internal/grpcserver"
	"osusume/internal/recommend"
	"osusume/pkg/database"
	"osusume/pkg/logger"
	"osusume/pkg/utils"
)

func main() {
	cfg, err := utils.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.Component("grpc-server")

	db := database.MustOpen(cfg.DB())
	defer db.Close()

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("grpc listen failed")
	}

	repo := catalog.NewRepo(db, *logger.L())
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
		*logger.L(),
	)
	svc := grpcserver.NewServer(repo, engine, *logger.L())

	grpcServer := grpc.NewServer()
	grpcserver.RegisterCatalogServer(grpcServer, svc)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatal().Err(err).Msg("grpc server stopped")
	}
}
