package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"balance-sheets/internal/cache"
	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/config"
	"balance-sheets/internal/embeddings"
	"balance-sheets/internal/logger"
	"balance-sheets/internal/queue"
	"balance-sheets/internal/store"
)

// Component selects a shared dependency for Build.
type Component int

const (
	ComponentStore Component = iota
	ComponentQueue
	ComponentEmbedder
	ComponentCache
	ComponentCheckpoint
)

// Deps bundles common runtime dependencies for services. Components not
// requested from Build are nil.
type Deps struct {
	Config     config.Config
	Log        *slog.Logger
	Store      store.Store
	Queue      queue.Queue
	Embedder   embeddings.Embedder
	Cache      cache.Cache
	Checkpoint checkpoint.Store
}

// Build loads env, config, and the requested components.
func Build(components ...Component) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}
	log := logger.New(cfg.LogLevel)
	deps := Deps{Config: cfg, Log: log}

	var err error
	for _, c := range components {
		switch c {
		case ComponentStore:
			if deps.Store, err = buildStore(cfg, log); err != nil {
				return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
			}
		case ComponentQueue:
			if deps.Queue, err = buildQueue(cfg, log); err != nil {
				return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
			}
		case ComponentEmbedder:
			if deps.Embedder, err = buildEmbedder(cfg, log); err != nil {
				return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
			}
		case ComponentCache:
			deps.Cache = buildCache(cfg, log)
		case ComponentCheckpoint:
			deps.Checkpoint = buildCheckpoint(cfg, log)
		}
	}
	return deps, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel, "dimensions", cfg.EmbeddingDimensions)
		return embedder, nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid option: openai)", cfg.EmbeddingProvider)
	}
}

// buildCache falls back to process memory; search works without Redis.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, caching in memory")
		return cache.NewMemoryCache(10 * time.Minute)
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, caching in memory", "err", err)
		return cache.NewMemoryCache(10 * time.Minute)
	}
	log.Info("using Redis cache", "addr", cfg.RedisAddr)
	return c
}

// buildCheckpoint falls back to process memory, which only resumes within
// one run.
func buildCheckpoint(cfg config.Config, log *slog.Logger) checkpoint.Store {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, checkpoints kept in memory")
		return checkpoint.NewMemory()
	}
	s, err := checkpoint.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, checkpoints kept in memory", "err", err)
		return checkpoint.NewMemory()
	}
	log.Info("using Redis checkpoints", "addr", cfg.RedisAddr)
	return s
}
