package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/config"
	"github.com/zhouzirui/concept-studio/backend/internal/handler"
	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	"github.com/zhouzirui/concept-studio/backend/internal/model/feedback"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/service/ai"
	"github.com/zhouzirui/concept-studio/backend/internal/service/analysis"
	"github.com/zhouzirui/concept-studio/backend/internal/service/image"
	"github.com/zhouzirui/concept-studio/backend/internal/service/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.NewExample().Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	defaultCategory, err := model.ParseCategory(cfg.Workflow.DefaultCategory)
	if err != nil {
		log.Fatal("invalid DEFAULT_IMAGE_CATEGORY", zap.Error(err))
	}

	m := metrics.New()
	personaStore := persona.NewMemoryStore(persona.Seed())
	comments := feedback.NewStaticProvider(feedback.Seed())

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Warn("凭证未配置，向导将停留在介绍页", zap.Strings("missing", missing))
	}

	// 仅在客户端创建成功时赋值接口，避免 nil 指针落入非 nil 接口
	var (
		analyzer        workflow.Analyzer
		analysisInitErr error
	)
	if cfg.Analysis.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.Analysis, log)
		if err != nil {
			analysisInitErr = err
			log.Error("failed to initialize analysis client", zap.Error(err))
		} else {
			analyzer = analysis.NewAnalyzer(aiService, personaStore, m, log)
			log.Info("analysis client initialized", zap.String("model", cfg.Analysis.Model), zap.String("base_url", cfg.Analysis.BaseURL))
		}
	}

	var images workflow.ImageGenerator
	if cfg.Image.Enabled() {
		images = image.NewClient(cfg.Image, log)
		log.Info("image client initialized", zap.String("engine", cfg.Image.EngineID))
	}

	machine := workflow.NewMachine(personaStore, comments, analyzer, images, workflow.Options{
		AggregationDelay: cfg.Workflow.AggregationDelay,
		DefaultCategory:  defaultCategory,
		AnalysisInitErr:  analysisInitErr,
	}, m, log)
	workflowService := workflow.NewService(machine, cfg.Workflow.SessionTTL, m, log)

	router := handler.NewRouter(handler.Deps{
		Personas: personaStore,
		Workflow: workflowService,
		Metrics:  m,
		Logger:   log,
	})

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("concept studio backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
