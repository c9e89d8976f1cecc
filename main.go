package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-score/internal/analyzer"
	"github.com/example/face-score/internal/auth"
	"github.com/example/face-score/internal/config"
	"github.com/example/face-score/internal/grpcclient"
	"github.com/example/face-score/internal/handlers"
	"github.com/example/face-score/internal/landmarks"
	"github.com/example/face-score/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, conn, err := grpcclient.DialLandmarkProvider(ctx, cfg.LandmarkProviderAddr, cfg.LandmarkProviderTimeout, logger)
	if err != nil {
		logger.Fatal("failed to connect to landmark provider", zap.Error(err))
	}
	defer conn.Close()
	if cfg.SerializeDetection {
		provider = landmarks.Serialized(provider)
	}

	opts := []analyzer.Option{analyzer.WithMaxImagePixels(cfg.MaxImagePixels)}
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		redisCancel()
		defer redisClient.Close()
		opts = append(opts, analyzer.WithCache(analyzer.NewRedisCache(redisClient), cfg.ReportCacheTTL))
	} else {
		logger.Info("report cache disabled")
	}
	svc := analyzer.New(provider, logger, opts...)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	routeOpts := handlers.Options{MaxUploadBytes: cfg.MaxUploadBytes, Logger: logger}
	if cfg.JWTSecret != "" {
		routeOpts.Auth = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	}
	handlers.RegisterRoutes(r, svc, routeOpts)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face score API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("landmark_topology", landmarks.Topology),
		zap.Bool("auth", routeOpts.Auth != nil),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initRedis(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a signal arrives,
// then drains in-flight requests for up to shutdownTimeout. A nil listener uses
// server.Addr; a nil signalCh listens for SIGINT and SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signalCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
