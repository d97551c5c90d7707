package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds runtime configuration shared by all services.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"52428800" validate:"gt=0"` // 50MB, 10-K PDFs are large

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"`
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"`
	QueueURL      string `env:"QUEUE_URL"`

	// Cache & checkpoints
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600" validate:"gte=0"` // seconds

	// Embeddings
	EmbeddingProvider   string `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	OpenAIKey           string `env:"OPENAI_API_KEY"`
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-large"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"3072" validate:"gt=0"`
	EmbeddingBatchSize  int    `env:"EMBEDDING_BATCH_SIZE" envDefault:"2048" validate:"min=1,max=2048"`

	// Chunking
	ChunkTargetWords int     `env:"CHUNK_TARGET_WORDS" envDefault:"800" validate:"gt=0"`
	ChunkMinWords    int     `env:"CHUNK_MIN_WORDS" envDefault:"100" validate:"gt=0"`
	ChunkMaxWords    int     `env:"CHUNK_MAX_WORDS" envDefault:"1000" validate:"gtefield=ChunkMinWords"`
	ChunkOverlap     float64 `env:"CHUNK_OVERLAP" envDefault:"0.15" validate:"gte=0,lt=1"`
	SectionRulesFile string  `env:"SECTION_RULES_FILE"`

	// Cost gate
	TokensPerWord    float64 `env:"TOKENS_PER_WORD" envDefault:"1.3" validate:"gt=0"`
	CostPer1KTokens  float64 `env:"COST_PER_1K_TOKENS" envDefault:"0.00013" validate:"gte=0"`
	CostThreshold    float64 `env:"COST_THRESHOLD" envDefault:"0.10" validate:"gte=0"`
	EmbedAutoApprove bool    `env:"EMBED_AUTO_APPROVE" envDefault:"false"`

	// Financial Modeling Prep
	FMPKey            string `env:"FMP_API_KEY"`
	FMPBaseURL        string `env:"FMP_BASE_URL" envDefault:"https://financialmodelingprep.com/api/v3"`
	FMPDailyLimit     int    `env:"FMP_DAILY_LIMIT" envDefault:"250"`
	FMPCallsPerMinute int    `env:"FMP_CALLS_PER_MINUTE" envDefault:"750" validate:"gt=0"`
	FetchWorkers      int    `env:"FETCH_WORKERS" envDefault:"20" validate:"gt=0"`

	// SEC EDGAR
	SECUserAgent     string        `env:"SEC_USER_AGENT" envDefault:"BalanceSheetsApp/1.0 (contact@example.com)" validate:"required"`
	EDGARFilingPause time.Duration `env:"EDGAR_FILING_PAUSE" envDefault:"2s"`

	// Files
	OutputDir string `env:"OUTPUT_DIR" envDefault:"output"`

	// Service discovery
	QueryURL string `env:"QUERY_URL" envDefault:"http://query:8081/api/search"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// Validate rejects values no component can run with: chunk bounds out of
// order, an overlap outside [0, 1), non-positive sizes and negative costs.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
