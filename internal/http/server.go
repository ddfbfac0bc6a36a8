package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Afaqak/asr-worker/internal/config"
	"github.com/Afaqak/asr-worker/internal/logger"
	"github.com/Afaqak/asr-worker/internal/pipeline"
	"github.com/Afaqak/asr-worker/internal/services"
	"github.com/Afaqak/asr-worker/internal/storage"
	"github.com/Afaqak/asr-worker/internal/worker"
)

const (
	maxRequestBytes = 1 << 20
	readTimeout     = 15 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *logger.Logger
}

func NewServer(cfg config.Config, log *logger.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	store, local, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	stager := storage.NewStager(store, cfg.BucketName, cfg.SignedURLTTL)
	downloader := services.NewDownloader(cfg)
	transcriber := services.NewTranscriber(cfg)
	pipe := pipeline.New(downloader, stager, transcriber, log)
	batch := worker.NewRunner(pipe.Run, cfg.MaxConcurrentDownloads, cfg.DownloadsPerMinute, log)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(maxRequestBytes))
	engine.Use(CORS(cfg))

	api := NewAPI(cfg, log, pipe, batch, downloader, store, local)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, log: log}, nil
}

// buildStore picks the storage backend from configuration. With no bucket
// configured it returns nil stores; handlers answer with the missing
// setting before ever touching storage.
func buildStore(cfg config.Config) (storage.BlobStore, *storage.Local, error) {
	if cfg.BucketName == "" {
		return nil, nil, nil
	}

	switch cfg.StorageProvider {
	case "gcs":
		s, err := storage.NewGCS(context.Background(), cfg.BucketName)
		return s, nil, err
	case "s3":
		s, err := storage.NewS3(cfg.AWSRegion, cfg.BucketName)
		return s, nil, err
	case "local":
		s, err := storage.NewLocal(cfg.LocalStorageDir, cfg.BaseURL, cfg.StorageSigningSecret)
		return s, s, err
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
// WriteTimeout stays unset because a pipeline run can legitimately take
// minutes.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", s.cfg.Port),
		Handler:     s.engine,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
