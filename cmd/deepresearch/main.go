package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/assets"
	"github.com/seekerlab/deepresearch/internal/config"
	"github.com/seekerlab/deepresearch/internal/cover"
	"github.com/seekerlab/deepresearch/internal/extract"
	"github.com/seekerlab/deepresearch/internal/planner"
	"github.com/seekerlab/deepresearch/internal/providers"
	"github.com/seekerlab/deepresearch/internal/ratelimit"
	"github.com/seekerlab/deepresearch/internal/records"
	"github.com/seekerlab/deepresearch/internal/report"
	"github.com/seekerlab/deepresearch/internal/search"
	"github.com/seekerlab/deepresearch/internal/state"
	"github.com/seekerlab/deepresearch/internal/streaming"
	"github.com/seekerlab/deepresearch/internal/workflow"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <research-id>\n", os.Args[0])
		os.Exit(2)
	}
	researchID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid research id %q: %v\n", os.Args[1], err)
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	store, err := records.Open(cfg.Postgres.DSN, cfg.Research.DailyQuota, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()
	logger.Info("connected to postgres")

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listener started", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	models := providers.DefaultModelTable()
	if cfg.Providers.ModelTablePath != "" {
		models, err = providers.LoadModelTable(cfg.Providers.ModelTablePath)
		if err != nil {
			logger.Fatal("failed to load model table", zap.Error(err))
		}
	}
	manager := providers.NewManager(providers.Config{
		Primary: providers.Name(cfg.Providers.Primary),
		Together: providers.Endpoint{
			BaseURL: cfg.Providers.Together.BaseURL,
			APIKey:  cfg.Providers.Together.APIKey,
		},
		OpenRouter: providers.Endpoint{
			BaseURL: cfg.Providers.OpenRouter.BaseURL,
			APIKey:  cfg.Providers.OpenRouter.APIKey,
		},
		ErrorCooldown: cfg.Providers.ErrorCooldown,
		Models:        models,
	}, logger)
	llmLimiter := ratelimit.New("llm", cfg.Providers.RequestsPerSecond, logger)
	llm := providers.NewCaller(manager, llmLimiter, "")

	extractor := extract.NewJinaReader(cfg.Search.JinaAPIKey, logger)
	braveLimiter := ratelimit.New("brave", cfg.Search.BraveRequestsPerSecond, logger)
	aggregator := search.NewAggregator([]search.Backend{
		search.NewTavily(cfg.Search.TavilyAPIKey, "advanced", logger),
		search.NewBrave(cfg.Search.BraveAPIKey, braveLimiter, logger),
		search.NewDuckDuckGo(ratelimit.New("duckduckgo", 1, logger), logger),
	}, extractor, logger)

	events := streaming.NewManager(redisClient, logger)
	states := state.NewStore(redisClient, logger)
	checkpoints := workflow.NewCheckpointLog(redisClient, logger)

	assetStore, err := assets.NewFileStore(cfg.Assets.Dir, cfg.Assets.BaseURL, logger)
	if err != nil {
		logger.Fatal("failed to create asset store", zap.Error(err))
	}

	var covers workflow.CoverGenerator
	if cfg.Providers.Together.APIKey != "" {
		covers = cover.New(llm, providers.ModelSummary,
			cover.NewTogetherImages(cfg.Providers.Together.APIKey, logger),
			assetStore, events, logger)
	}

	orchestrator := workflow.New(
		workflow.Config{
			Budget:      cfg.Research.Budget,
			MaxQueries:  cfg.Research.MaxQueries,
			MaxSources:  cfg.Research.MaxSources,
			RunDeadline: cfg.Research.RunDeadline,
		},
		store, store, states, events, checkpoints,
		planner.New(llm, planner.DefaultModels(), logger),
		aggregator,
		report.New(llm, providers.ModelAnswer, cfg.Research.MaxTokens, events, logger),
		covers,
		logger,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("signal received, cancelling run", zap.String("signal", sig.String()))
		orchestrator.Cancel(researchID.String())
	}()

	if err := orchestrator.Run(ctx, researchID); err != nil {
		logger.Error("research run failed", zap.Error(err))
		os.Exit(1)
	}
}
