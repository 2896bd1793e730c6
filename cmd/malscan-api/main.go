package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shashankrm11/malscan/internal/classifier"
	"github.com/shashankrm11/malscan/internal/config"
	"github.com/shashankrm11/malscan/internal/db"
	dbRedis "github.com/shashankrm11/malscan/internal/db/redis"
	"github.com/shashankrm11/malscan/internal/domain"
	"github.com/shashankrm11/malscan/internal/domain/feature"
	logpkg "github.com/shashankrm11/malscan/internal/logger"
	"github.com/shashankrm11/malscan/internal/metrics"
	"github.com/shashankrm11/malscan/internal/repository/scanstats"
	"github.com/shashankrm11/malscan/internal/repository/verdictcache"
	chiTransport "github.com/shashankrm11/malscan/internal/transport/chi"
	analyzeuc "github.com/shashankrm11/malscan/internal/usecase/analyze"
	classifyuc "github.com/shashankrm11/malscan/internal/usecase/classify"
	healthuc "github.com/shashankrm11/malscan/internal/usecase/health"
	"github.com/shashankrm11/malscan/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting malscan API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("model_path", cfg.Classifier.Path),
		zap.String("model_format", cfg.Classifier.Format),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	metrics.RegisterClassificationMetrics()

	schema := feature.DefaultSchema()
	if len(cfg.Schema.Features) > 0 {
		schema, err = feature.NewSchema(cfg.Schema.Features)
		if err != nil {
			logger.Fatal("Invalid feature schema", zap.Error(err))
		}
	}

	// A missing or broken model does not stop the server: it keeps answering GET /
	// and reports every classification as unavailable.
	model, closer, modelID := loadModel(cfg.Classifier, schema, logger)
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	ctx := context.Background()

	var store db.Store
	if cfg.Cache.Enabled {
		store = connectCache(ctx, cfg.Cache, logger)
		defer store.Close()
	}

	serving := servingConfig(cfg.Classifier)

	// Decorator chain: model -> cached -> instrumented.
	var chain domain.Classifier
	var checker healthuc.ModelChecker
	if model != nil {
		checker = model
		chain = model
		if store != nil {
			chain = verdictcache.New(chain, store, modelID,
				time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.VerdictCacheTotal, logger)
		}
		chain = classifyuc.NewInstrumentedClassifier(chain, cfg.Classifier.Format, serving, logger)
	}

	classifySvc := classifyuc.New(chain, schema, serving, logger)
	analyzeSvc := analyzeuc.New(classifySvc)

	// Pass nil interfaces, not typed nil pointers, when a component is absent.
	var pinger healthuc.CachePinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(checker, pinger)

	server := chiTransport.NewServer(classifySvc, analyzeSvc, healthSvc, logger).
		WithMaxUpload(cfg.HTTP.MaxUploadBytes())

	if store != nil {
		stats := scanstats.New(store, time.Duration(cfg.Cache.StatsTTLDays)*24*time.Hour)
		classifySvc.WithStats(stats)
		server.WithStats(stats)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, logger),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// loadModel returns a nil model when the artifact cannot be loaded.
func loadModel(cc config.ClassifierConfig, schema feature.Schema, logger *zap.Logger) (classifier.Model, io.Closer, string) {
	loaded := metrics.ModelLoaded.WithLabelValues(cc.Format)

	m, err := classifier.Load(classifier.Options{
		Path:   cc.Path,
		Format: classifier.Format(cc.Format),
		Schema: schema,
		ONNX: classifier.ONNXOptions{
			LibraryPath:       cc.ONNX.LibraryPath,
			InputName:         cc.ONNX.InputName,
			LabelOutput:       cc.ONNX.LabelOutput,
			ProbabilityOutput: cc.ONNX.ProbabilityOutput,
		},
	})
	if err != nil {
		logger.Error("Failed to load classifier, serving without a model",
			zap.String("path", cc.Path),
			zap.Error(err),
		)
		loaded.Set(0)
		return nil, nil, ""
	}

	id, err := classifier.Fingerprint(cc.Path)
	if err != nil {
		logger.Warn("Failed to fingerprint model, verdict cache keys use the path", zap.Error(err))
		id = cc.Path
	}

	loaded.Set(1)
	logger.Info("Classifier loaded",
		zap.String("format", cc.Format),
		zap.String("fingerprint", id),
		zap.Int("features", schema.Len()),
	)
	return m, m, id
}

func connectCache(ctx context.Context, cc config.CacheConfig, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cc.Addrs,
		Password: cc.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	if err := store.WaitForReady(ctx, time.Duration(cc.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Cache not ready", zap.Error(err))
	}
	logger.Info("Connected to verdict cache", zap.Strings("addrs", cc.Addrs))
	return store
}

func servingConfig(cc config.ClassifierConfig) domain.ServingConfig {
	src := domain.LabelFromThreshold
	if cc.LabelSource == string(domain.LabelFromModel) {
		src = domain.LabelFromModel
	}
	return domain.ServingConfig{Threshold: cc.Threshold, LabelSource: src}
}
