package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lachopopov/multiagent-system-demo/agent/crews"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/config"
	"github.com/lachopopov/multiagent-system-demo/internal/database"
	"github.com/lachopopov/multiagent-system-demo/internal/metrics"
	"github.com/lachopopov/multiagent-system-demo/internal/migration"
	"github.com/lachopopov/multiagent-system-demo/internal/telemetry"
	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/llm/providers/openaicompat"
	"github.com/lachopopov/multiagent-system-demo/llm/retry"
)

// promauto 注册到默认 registry，同一进程只能创建一个 Collector
var (
	collectorOnce sync.Once
	collector     *metrics.Collector
)

func sharedCollector(namespace string, logger *zap.Logger) *metrics.Collector {
	collectorOnce.Do(func() {
		collector = metrics.NewCollector(namespace, logger)
	})
	return collector
}

// app 持有一次命令执行所需的全部基础设施
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	otel     *telemetry.Providers
	provider llm.Provider
	retryer  *retry.Retryer
	store    transcript.Store
	pool     *database.PoolManager
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: sharedCollector(cfg.Server.MetricsNamespace, logger),
	}

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = otelProviders

	a.provider = metrics.InstrumentProvider(newProvider(cfg.LLM, logger), a.metrics)
	a.retryer = newRetryer(cfg.LLM, logger)

	if err := a.openTranscript(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// newProvider 根据配置选择生成能力；offline 不访问网络
func newProvider(cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	if cfg.Provider != "openai" {
		return crews.NewOfflineProvider(logger)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName:      "openai",
		APIKey:            apiKey,
		BaseURL:           cfg.BaseURL,
		DefaultModel:      cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, logger)
}

func newRetryer(cfg config.LLMConfig, logger *zap.Logger) *retry.Retryer {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.InitialBackoff > 0 {
		policy.InitialDelay = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxDelay = cfg.MaxBackoff
	}
	policy.Retryable = retry.GenerationRetryable
	return retry.New(policy, logger)
}

// openTranscript 打开会话记录存储；sql 后端先执行迁移
func (a *app) openTranscript(ctx context.Context) error {
	tc := a.cfg.Transcript
	storeCfg := transcript.Config{
		Type:           transcript.StoreType(tc.Type),
		ConversationID: tc.ConversationID,
		Path:           tc.Path,
		Redis: transcript.RedisConfig{
			Addr:      tc.Redis.Addr,
			Password:  tc.Redis.Password,
			DB:        tc.Redis.DB,
			PoolSize:  tc.Redis.PoolSize,
			KeyPrefix: tc.Redis.KeyPrefix,
			TLS:       tc.Redis.TLS,
		},
	}

	var db *gorm.DB
	if storeCfg.Type == transcript.StoreTypeSQL {
		if err := ensureSQLiteDir(tc.Database); err != nil {
			return err
		}
		if err := migrateUp(ctx, tc.Database, a.logger); err != nil {
			return err
		}
		pool, err := database.Open(tc.Database, a.metrics, a.logger)
		if err != nil {
			return fmt.Errorf("open transcript database: %w", err)
		}
		a.pool = pool
		db = pool.DB()
	}

	store, err := transcript.Open(storeCfg, db)
	if err != nil {
		return fmt.Errorf("open %s transcript: %w", storeCfg.Type, err)
	}
	a.store = store
	a.logger.Info("transcript store ready",
		zap.String("type", string(storeCfg.Type)),
		zap.String("conversation_id", storeCfg.ConversationID),
	)
	return nil
}

func ensureSQLiteDir(cfg config.DatabaseConfig) error {
	if cfg.Driver != "sqlite" || cfg.Name == "" || cfg.Name == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Name), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

func migrateUp(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migrate transcript schema: %w", err)
	}
	return nil
}

// Close 按打开的逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(context.WithoutCancel(ctx)))
	}
	return errors.Join(errs...)
}
