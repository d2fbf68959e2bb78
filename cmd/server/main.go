package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/config"
	"artifact-review/internal/handler/httpHandler"
	"artifact-review/internal/handler/ingestHandler"
	"artifact-review/internal/repository/BlackListRepo"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/repository/jobLock"
	"artifact-review/internal/repository/userRepo"
	"artifact-review/internal/service"
	"artifact-review/internal/service/catalogService"
	"artifact-review/internal/service/ingestService"
	"artifact-review/internal/service/permission"
	"artifact-review/internal/service/retrievalService"
	"artifact-review/internal/service/sharingService"
	"artifact-review/internal/service/sweeper"
	"artifact-review/pkg/database/postgres"
	"artifact-review/pkg/database/redis"
	"artifact-review/pkg/logger"
	"artifact-review/pkg/middleware"
	"artifact-review/pkg/rpc"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	ctx, err := logger.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger(ctx)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	var (
		store artifactRepo.Store
		users userRepo.Directory
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = artifactRepo.NewPostgres(pool)
		users = userRepo.New(pool)
	default:
		log.Warn("using in-memory catalog, data is lost on restart")
		store = artifactRepo.NewMemory()
		users = userRepo.NewMemory()
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("cannot connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	blobs, err := blobstore.New(ctx, cfg.Blob)
	if err != nil {
		log.Fatal("Failed to open blob store", zap.Error(err))
	}

	locks := jobLock.New(redisClient, cfg.IngestLockTTL)
	perms := permission.New(store)
	authService := service.New(cfg.JWTSecret, BlackListRepo.NewBlackListRepo(redisClient))
	ingest := ingestService.New(store, blobs, perms, locks, log)

	api := httpHandler.New(httpHandler.Services{
		Catalog:   catalogService.New(store, blobs, perms, log),
		Ingest:    ingest,
		Retrieval: retrievalService.New(store, blobs, perms, log),
		Sharing:   sharingService.New(store, perms, users.FindIDByEmail, log),
		Perms:     perms,
		Users:     users,
	}, authService, httpHandler.Options{
		CORSOrigins:    cfg.CORSOrigins,
		MaxRequestBody: cfg.MaxRequestBody,
	}, log)

	sweep := sweeper.New(store, blobs, locks, cfg.Sweep, log)
	if err := sweep.Start(); err != nil {
		log.Fatal("Failed to start sweeper", zap.Error(err))
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer(
		rpc.ServerOption(),
		grpc.ChainUnaryInterceptor(middleware.OperatorInterceptor(cfg.OperatorToken, log)),
		grpc.StreamInterceptor(middleware.StreamOperatorInterceptor(cfg.OperatorToken, log)),
	)
	ingestHandler.Register(grpcServer, ingestHandler.New(ingest))

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("grpc server started", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("failed to serve grpc", zap.Error(err))
			stop()
		}
	}()
	go func() {
		log.Info("http server started", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to serve http", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	<-sweep.Stop().Done()
	api.Wait()
	log.Info("server stopped")
}
