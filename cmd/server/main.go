package main

//go:generate sh -c "mkdir -p ../../static && GOOS=js GOARCH=wasm go build -o ../../static/formwasm.wasm ../formwasm"
//go:generate sh -c "cp \"$(go env GOROOT)/lib/wasm/wasm_exec.js\" ../../static/"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vyvo/retina/backend/pkg/classify"
	"github.com/vyvo/retina/backend/pkg/config"
	"github.com/vyvo/retina/backend/pkg/fetch"
	"github.com/vyvo/retina/backend/pkg/results"
	"github.com/vyvo/retina/backend/pkg/storage"
	"github.com/vyvo/retina/backend/pkg/telemetry"
	"github.com/vyvo/retina/backend/pkg/web"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		shutdown := telemetry.InitTracer(ctx, "retina")
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		}()
	}

	uploads, err := newUploadStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to init upload storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if c, ok := uploads.(io.Closer); ok {
		defer c.Close()
	}

	repo, err := newResultRepository(cfg.Results)
	if err != nil {
		logger.Error("failed to init result store", "backend", cfg.Results.Backend, "error", err)
		os.Exit(1)
	}
	if c, ok := repo.(io.Closer); ok {
		defer c.Close()
	}

	srv, err := web.New(web.Deps{
		Uploads: uploads,
		Results: repo,
		Fetcher: fetch.New(fetch.Options{
			Timeout:   cfg.FetchTimeout,
			UserAgent: cfg.FetchUserAgent,
			MaxBytes:  cfg.MaxUploadBytes,
		}),
		Classifier: classify.NewClient(cfg.RunnerURL),
		Logger:     logger,
	}, web.Options{
		TopK:      cfg.TopK,
		ImageSize: cfg.ImageSize,
		Thresholds: classify.Thresholds{
			RejectBelow:   cfg.RejectBelow,
			LowConfidence: cfg.ConfThreshold,
		},
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      cfg.StaticDir,
		APIKeys:        cfg.APIKeys,
	})
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(timeoutMiddleware(cfg.RequestTimeout))
	router.Mount("/", srv.Routes())

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("retina server listening",
		"addr", cfg.ListenAddr,
		"runner", cfg.RunnerURL,
		"storage", cfg.Storage.Backend,
		"results", cfg.Results.Backend,
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server listen failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("retina server stopped")
}

func newUploadStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewLocalStore(cfg.LocalDir)
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	case "sftp":
		return storage.NewSFTPStore(storage.SFTPConfig{
			Addr:           cfg.SFTP.Addr,
			Username:       cfg.SFTP.Username,
			Password:       cfg.SFTP.Password,
			PrivateKeyPath: cfg.SFTP.PrivateKeyPath,
			Dir:            cfg.SFTP.Dir,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newResultRepository(cfg config.ResultsConfig) (results.Repository, error) {
	switch cfg.Backend {
	case "memory":
		return results.NewMemStore(), nil
	case "redis":
		return results.NewRedisStore(cfg.RedisURL, cfg.TTL)
	case "postgres":
		return results.NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.Backend)
	}
}

func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
