package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// アプリケーション設定
	AppEnv   string
	LogLevel string

	// Database設定
	Database DatabaseConfig

	// OpenAI設定
	OpenAI OpenAIConfig

	// RAGパラメータ
	RAG RAGConfig

	// 取り込みワーカー設定
	Ingestion IngestionConfig

	// APIサーバー設定
	API APIConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	LLMModel           string
	EmbeddingModel     string
	EmbeddingDimension int
}

// RAGConfig は検索・生成パラメータ
// これらの値はRAGの品質に大きく影響する
type RAGConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	TopKResults         int
	SimilarityThreshold float64
	CacheTTL            time.Duration
	HybridSearch        bool
}

// IngestionConfig は取り込みワーカー設定
type IngestionConfig struct {
	DocsDir      string
	PollInterval time.Duration
}

// APIConfig はHTTP APIサーバー設定
type APIConfig struct {
	Addr            string
	RateLimitCount  int
	RateLimitWindow time.Duration
}

// IsProduction は本番環境かどうかを返します
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docsrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docsrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o"),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		RAG: RAGConfig{
			ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 200),
			TopKResults:         getEnvAsInt("TOP_K_RESULTS", 5),
			SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.75),
			CacheTTL:            time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
			HybridSearch:        getEnvAsBool("HYBRID_SEARCH", true),
		},
		Ingestion: IngestionConfig{
			DocsDir:      getEnv("DOCS_DIR", "./documents"),
			PollInterval: time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 30)) * time.Second,
		},
		API: APIConfig{
			Addr:            getEnv("API_ADDR", ":8080"),
			RateLimitCount:  getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は破綻した設定を起動前に拒否します
func (c *Config) validate() error {
	switch c.AppEnv {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid APP_ENV: %s (must be development, staging, or production)", c.AppEnv)
	}

	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopKResults <= 0 {
		return fmt.Errorf("TOP_K_RESULTS must be positive, got %d", c.RAG.TopKResults)
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0, 1], got %f", c.RAG.SimilarityThreshold)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
