package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visionaid/internal/api"
	"visionaid/internal/auth"
	"visionaid/internal/config"
	"visionaid/internal/logger"
	"visionaid/internal/pipeline"
	"visionaid/internal/quota"
	"visionaid/internal/redis"
	"visionaid/internal/service/ocr"
	"visionaid/internal/service/speech"
	"visionaid/internal/service/vision"
	"visionaid/internal/storage"
	"visionaid/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("VISIONAID_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logr, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		recorder pipeline.RunRecorder
		runs     api.RunLister
	)
	if dbType := cfg.BasicConfig.Database; dbType != "" {
		logr.Info("opening run log", zap.String("db_type", dbType))
		db, err := storage.Open(dbType, cfg)
		if err != nil {
			logr.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		if err := storage.Migrate(db, dbType); err != nil {
			logr.Fatal("migrate database", zap.Error(err))
		}
		runStore := storage.NewRunStore(db)
		recorder, runs = runStore, runStore
	}

	stageTimeout := time.Duration(cfg.BasicConfig.StageTimeoutSeconds) * time.Second
	opts := []pipeline.Option{
		pipeline.WithTimeout(stageTimeout),
		pipeline.WithLogger(logr.Named("pipeline")),
	}
	if n := cfg.Quota.CallsPerWindow; n > 0 {
		window := time.Duration(cfg.Quota.WindowSeconds) * time.Second
		if cfg.Redis.Enabled() {
			rdb, err := redis.NewRedisClient(cfg.Redis)
			if err != nil {
				logr.Fatal("create redis client", zap.Error(err))
			}
			defer rdb.Close()
			opts = append(opts, pipeline.WithLimiter(quota.NewRedis(rdb, n, window)))
		} else {
			opts = append(opts, pipeline.WithLimiter(quota.NewMemory(n, window)))
		}
	}

	chat, err := vision.NewChatModel(ctx, cfg)
	if err != nil {
		logr.Fatal("init vision model", zap.String("provider", cfg.Vision.Provider), zap.Error(err))
	}
	visionSvc := vision.New(chat, cfg.Vision.Provider, cfg.Vision.MaxTokens, logr.Named("vision"))
	ocrSvc := ocr.NewTesseract(cfg.OCR, logr.Named("ocr"))
	synth, err := speech.New(cfg, logr.Named("speech"))
	if err != nil {
		logr.Fatal("init speech", zap.Error(err))
	}

	lane := worker.NewRunner(cfg.BasicConfig.QueueSize, logr.Named("worker"))
	defer lane.Stop()

	ctrl := pipeline.NewController(pipeline.Deps{
		Store:    pipeline.NewStore(),
		Executor: pipeline.NewExecutor(visionSvc, ocrSvc, opts...),
		Speech:   pipeline.NewSpeechRenderer(synth, cfg.Speech.Language, opts...),
		Lane:     lane,
		Recorder: recorder,
		Logger:   logr.Named("controller"),
	})
	ctrl.StartIdleReaper(ctx, time.Duration(cfg.BasicConfig.SessionIdleMinutes)*time.Minute, time.Minute)

	guard := auth.NewGuard(cfg.BasicConfig.APIKey)
	if !guard.Enabled() {
		logr.Warn("api key not set, API is unauthenticated")
	}
	handlers := api.NewHandler(ctrl, runs, guard, api.Options{
		MaxUploadMB:       cfg.BasicConfig.MaxUploadMB,
		MaxImageDimension: cfg.BasicConfig.MaxImageDimension,
		RequestTimeout:    2*stageTimeout + 10*time.Second,
	}, logr.Named("api"))

	if cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.AccessLog(logr.Named("http")))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Warn("shutdown", zap.Error(err))
		}
	}()

	logr.Info("server listening",
		zap.String("addr", srv.Addr),
		zap.String("vision", cfg.Vision.Provider),
		zap.String("speech", cfg.Speech.Provider))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Fatal("server stopped", zap.Error(err))
	}
}
