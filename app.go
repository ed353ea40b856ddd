package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"loan-risk/config"
	"loan-risk/logger"
	"loan-risk/repository"
	"loan-risk/service"
)

const loanAPITimeout = 10 * time.Second

// loadConfig reads the config file named by --config and initializes the
// logger from it.
func loadConfig(c *cli.Context, logOpts ...zap.Option) (*config.AppConfig, error) {
	return initConfig(c.String(configPathFlag.Name), c.IsSet(configPathFlag.Name), c.Bool(debugFlag.Name), logOpts...)
}

// initConfig falls back to built-in defaults when the file is missing and
// the path was not given explicitly.
func initConfig(path string, explicit, debug bool, logOpts ...zap.Option) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	source := path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = config.Default()
		source = "defaults"
	} else {
		loaded, err := config.LoadFromConfigFilePath(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := logger.Init(cfg.Logging.Level, logOpts...); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}

	logger.Info("configuration loaded",
		zap.String("source", source),
		zap.String("log_level", cfg.Logging.Level))
	return cfg, nil
}

func buildLoanRepository(cfg *config.AppConfig) (repository.LoanRepository, error) {
	switch cfg.Loans.Source {
	case config.LoanSourceAPI:
		logger.Info("using loan API", zap.String("base_url", cfg.Loans.APIBaseURL))
		return repository.NewLoanRepositoryAPI(cfg.Loans.APIBaseURL, loanAPITimeout), nil
	default:
		return repository.NewLoanRepositoryFile(cfg.Loans.FilePath)
	}
}

// buildRiskEngine returns nil when scoring is disabled.
func buildRiskEngine(cfg *config.AppConfig) (*service.RiskEngine, error) {
	if !cfg.Risk.Enabled {
		logger.Info("risk scoring disabled")
		return nil, nil
	}

	rules, err := config.LoadRules(cfg.Risk.RulesPath)
	if err != nil {
		return nil, err
	}
	engine, err := service.NewRiskEngine(*rules, cfg.Risk.ReferenceAnnualRate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build risk engine")
	}

	logger.Info("risk rules loaded",
		zap.String("path", cfg.Risk.RulesPath),
		zap.Int("categories", len(rules.Table)))
	return engine, nil
}

func buildAnalysisStore(ctx context.Context, cfg *config.AppConfig) (repository.AnalysisRepository, func() error, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.StoreSQLite, config.StorePostgres:
		store, err := repository.OpenAnalysisRepositorySQL(ctx, strings.ToLower(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("analysis store opened", zap.String("driver", cfg.Store.Driver))
		return store, store.Close, nil
	default:
		return repository.NewAnalysisRepositoryMemory(), func() error { return nil }, nil
	}
}

// buildCache connects to redis when enabled and falls back to the in-process
// cache when it cannot be reached.
func buildCache(ctx context.Context, cfg *config.AppConfig) (repository.CacheRepository, func() error) {
	if !cfg.Redis.Enabled {
		return repository.NewMockCache(), func() error { return nil }
	}

	cache := repository.NewRedisCache(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using in-memory cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err))
		_ = cache.Close()
		return repository.NewMockCache(), func() error { return nil }
	}

	logger.Info("redis cache connected", zap.String("addr", cfg.Redis.Addr))
	return cache, cache.Close
}

func buildAnalyzer(cfg *config.AppConfig) *service.LLMAnalyzer {
	client := service.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Timeout())
	return service.NewLLMAnalyzer(client, cfg.Ollama.Model, cfg.Ollama.Temperature)
}

// application holds the wired analysis pipeline and the resources to release.
type application struct {
	analyzer *service.LLMAnalyzer
	service  *service.AnalysisService
	closers  []func() error
}

func newApplication(ctx context.Context, cfg *config.AppConfig) (*application, error) {
	loans, err := buildLoanRepository(cfg)
	if err != nil {
		return nil, err
	}

	risk, err := buildRiskEngine(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := buildAnalysisStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, closeCache := buildCache(ctx, cfg)
	analyzer := buildAnalyzer(cfg)

	return &application{
		analyzer: analyzer,
		service:  service.NewAnalysisService(loans, store, cache, cfg.Redis.TTL(), risk, analyzer),
		closers:  []func() error{closeCache, closeStore},
	}, nil
}

func (a *application) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}
