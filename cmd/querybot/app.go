package main

import (
	"context"
	"fmt"
	"time"

	"querybot/internal/common/config"
	"querybot/internal/common/database"
	"querybot/internal/common/logger"
	"querybot/internal/common/observability"
	"querybot/internal/index"
	"querybot/internal/knowledge"
	"querybot/internal/llm"
	"querybot/internal/orchestrator"
	"querybot/internal/reasoning"
	"querybot/internal/reasoning/agent"
	"querybot/internal/reports"
	"querybot/internal/schema"
	"querybot/internal/session"
	"querybot/pkg/registry"

	"go.uber.org/zap"
)

// app holds every wired component and the handles that need closing.
type app struct {
	cfg       *config.Config
	zap       *zap.Logger
	log       logger.Logger
	sql       *database.SQLClient
	redis     *database.RedisClient
	es        *database.ElasticsearchClient
	audit     *zap.Logger
	obs       *observability.Observability
	registry  *registry.Registry
	indexer   *schema.Indexer
	sessions  *session.Store
	knowledge *knowledge.Store
	bot       *orchestrator.Bot
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// newApp connects to every configured backend. connectRetries bounds the
// retry loop for network services.
func newApp(ctx context.Context, cfg *config.Config, connectRetries int) (*app, error) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	a := &app{cfg: cfg, zap: zapLog, log: logger.NewZapAdapter(zapLog)}

	if err := a.connect(ctx, connectRetries); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, retries int) error {
	cfg := a.cfg

	err := retryWithBackoff(func() error {
		var err error
		a.sql, err = database.NewSQL(cfg.Database.SQL)
		if err != nil {
			return err
		}
		if err := a.sql.Ping(ctx); err != nil {
			_ = a.sql.Close()
			return err
		}
		return nil
	}, retries, 2*time.Second, a.zap, "SQL connection")
	if err != nil {
		return err
	}
	a.zap.Info("SQL database connected", zap.String("driver", cfg.Database.SQL.Driver))

	if cfg.Session.CacheBackend == "redis" {
		err = retryWithBackoff(func() error {
			a.redis = database.NewRedis(cfg.Database.Redis)
			if err := a.redis.Ping(ctx); err != nil {
				_ = a.redis.Close()
				return err
			}
			return nil
		}, retries, 2*time.Second, a.zap, "Redis connection")
		if err != nil {
			return err
		}
		a.zap.Info("Redis connected", zap.String("address", cfg.Database.Redis.Address))
	}

	if cfg.Index.Backend == "elasticsearch" {
		err = retryWithBackoff(func() error {
			var err error
			a.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return a.es.Ping(ctx)
		}, retries, 2*time.Second, a.zap, "Elasticsearch connection")
		if err != nil {
			return err
		}
		a.zap.Info("Elasticsearch connected", zap.String("url", cfg.Database.Elasticsearch.GetURL()))
	}
	return nil
}

func (a *app) newIndex(name string) index.Index {
	if a.es != nil {
		return index.NewElasticsearch(a.es.Client, name)
	}
	return index.NewMemory()
}

func (a *app) wire() error {
	cfg := a.cfg

	var err error
	a.registry, err = registry.LoadRegistry(cfg.Reports.Path)
	if err != nil {
		return fmt.Errorf("failed to load reports from %s: %w", cfg.Reports.Path, err)
	}

	a.audit = zap.NewNop()
	if cfg.Reports.ExecutionLog != "" {
		if a.audit, err = logger.NewFile(cfg.Reports.ExecutionLog); err != nil {
			return fmt.Errorf("failed to open report execution log: %w", err)
		}
	}

	a.obs, err = observability.New(cfg.App.Name)
	if err != nil {
		a.zap.Warn("Observability setup incomplete", zap.Error(err))
	}

	completer, model, err := llm.New(cfg.LLM, a.log)
	if err != nil {
		return err
	}

	var cache session.Cache = session.NewMemoryCache()
	if a.redis != nil {
		cache = session.NewRedisCache(a.redis.Client, cfg.Session.TTL())
	}
	a.sessions = session.NewStore(cfg.Session.WindowSize, cfg.Session.TTL(), cache)

	schemaIndex := a.newIndex(cfg.Index.SchemaIndex)
	a.indexer = schema.NewIndexer(a.sql, schemaIndex, a.log)
	a.knowledge = knowledge.NewStore(a.newIndex(cfg.Index.HistoryIndex), a.log)

	a.bot = orchestrator.New(orchestrator.Deps{
		Matcher:       reports.NewMatcher(a.registry, a.audit),
		Selector:      schema.NewSelector(schemaIndex),
		Sessions:      a.sessions,
		Dispatcher:    reasoning.NewDispatcher(agent.New(model), a.sql, cfg.Reasoning.MaxIterations, a.log),
		Completer:     completer,
		DB:            a.sql,
		Knowledge:     a.knowledge,
		Observability: a.obs,
		Logger:        a.log,
	}, orchestrator.Options{
		TopKTables:    cfg.Reasoning.TopKTables,
		KnowledgeTopK: cfg.Reasoning.KnowledgeTopK,
		Learn:         cfg.Reasoning.Learn,
	})
	return nil
}

// Close flushes background writers and releases connections.
func (a *app) Close() {
	if a.knowledge != nil {
		a.knowledge.Close()
	}
	if a.obs != nil {
		a.obs.Shutdown()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sql != nil {
		_ = a.sql.Close()
	}
	if a.audit != nil {
		_ = a.audit.Sync()
	}
	_ = a.zap.Sync()
}
