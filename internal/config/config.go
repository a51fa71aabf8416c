package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config enumerates every option the orchestrator recognizes.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Retrieval RetrievalConfig
	Experts   ExpertsConfig
	Workflow  WorkflowConfig
	Session   SessionConfig
	LogLevel  string
}

type ServerConfig struct {
	Host string
	Port string
}

type RedisConfig struct {
	// Addr empty means the in-memory session backend is used alone.
	Addr     string
	Password string
	DB       int
}

type RetrievalConfig struct {
	ChromaURL        string
	ChromaCollection string
	ElasticURL       string
	ElasticIndex     string
	TopK             int
}

// ExpertConfig is the fixed construction-time configuration of one adapter.
type ExpertConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type ExpertsConfig struct {
	OpenAI    ExpertConfig
	Gemini    ExpertConfig
	Clova     ExpertConfig
	Anthropic ExpertConfig
}

type WorkflowConfig struct {
	TurnTimeout         time.Duration
	ExpertTimeout       time.Duration
	ModeratorTimeout    time.Duration
	ClassifierTimeout   time.Duration
	MaxExperts          int
	MinExpertsForDebate int
	ConfidenceFloor     float64
	ConfidenceCeiling   float64
}

type SessionConfig struct {
	IdleTimeout     time.Duration
	MaxHistoryTurns int
	SweepInterval   time.Duration
}

// Default returns the documented defaults with no environment applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "8000"},
		Redis:  RedisConfig{Addr: "", DB: 0},
		Retrieval: RetrievalConfig{
			ChromaURL:        "http://localhost:8001",
			ChromaCollection: "manufacturing_knowledge",
			ElasticURL:       "http://localhost:9200",
			ElasticIndex:     "manufacturing_docs",
			TopK:             5,
		},
		Experts: ExpertsConfig{
			OpenAI:    ExpertConfig{Model: "gpt-4o-mini", MaxTokens: 2000, Temperature: 0.2},
			Gemini:    ExpertConfig{Model: "gemini-2.0-flash", MaxTokens: 2000, Temperature: 0.2},
			Clova:     ExpertConfig{Model: "HCX-003", MaxTokens: 2000, Temperature: 0.2},
			Anthropic: ExpertConfig{Model: "claude-3-5-sonnet-20240620", MaxTokens: 2000, Temperature: 0.2},
		},
		Workflow: WorkflowConfig{
			TurnTimeout:         180 * time.Second,
			ExpertTimeout:       60 * time.Second,
			ModeratorTimeout:    60 * time.Second,
			ClassifierTimeout:   10 * time.Second,
			MaxExperts:          3,
			MinExpertsForDebate: 2,
			ConfidenceFloor:     0.3,
			ConfidenceCeiling:   0.95,
		},
		Session: SessionConfig{
			IdleTimeout:     24 * time.Hour,
			MaxHistoryTurns: 50,
			SweepInterval:   10 * time.Minute,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from the environment, honoring a local .env.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Default()

	cfg.Server.Host = getEnv("API_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("API_PORT", cfg.Server.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Retrieval.ChromaURL = getEnv("CHROMA_URL", cfg.Retrieval.ChromaURL)
	cfg.Retrieval.ChromaCollection = getEnv("CHROMA_COLLECTION", cfg.Retrieval.ChromaCollection)
	cfg.Retrieval.ElasticURL = getEnv("ELASTICSEARCH_URL", cfg.Retrieval.ElasticURL)
	cfg.Retrieval.ElasticIndex = getEnv("ELASTICSEARCH_INDEX", cfg.Retrieval.ElasticIndex)
	cfg.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", cfg.Retrieval.TopK)

	cfg.Experts.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Experts.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.Experts.OpenAI.Model = getEnv("OPENAI_MODEL", cfg.Experts.OpenAI.Model)
	cfg.Experts.Gemini.APIKey = os.Getenv("GOOGLE_AI_API_KEY")
	cfg.Experts.Gemini.BaseURL = os.Getenv("GEMINI_BASE_URL")
	cfg.Experts.Gemini.Model = getEnv("GEMINI_MODEL", cfg.Experts.Gemini.Model)
	cfg.Experts.Clova.APIKey = os.Getenv("NAVER_API_KEY")
	cfg.Experts.Clova.BaseURL = os.Getenv("CLOVA_BASE_URL")
	cfg.Experts.Clova.Model = getEnv("CLOVA_MODEL", cfg.Experts.Clova.Model)
	cfg.Experts.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Experts.Anthropic.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
	cfg.Experts.Anthropic.Model = getEnv("ANTHROPIC_MODEL", cfg.Experts.Anthropic.Model)

	cfg.Workflow.TurnTimeout = getEnvSeconds("TURN_TIMEOUT_S", cfg.Workflow.TurnTimeout)
	cfg.Workflow.ExpertTimeout = getEnvSeconds("EXPERT_TIMEOUT_S", cfg.Workflow.ExpertTimeout)
	cfg.Workflow.ModeratorTimeout = getEnvSeconds("MODERATOR_TIMEOUT_S", cfg.Workflow.ModeratorTimeout)
	cfg.Workflow.ClassifierTimeout = getEnvSeconds("CLASSIFIER_TIMEOUT_S", cfg.Workflow.ClassifierTimeout)
	cfg.Workflow.MaxExperts = getEnvInt("MAX_EXPERTS", cfg.Workflow.MaxExperts)
	cfg.Workflow.MinExpertsForDebate = getEnvInt("MIN_EXPERTS_FOR_DEBATE", cfg.Workflow.MinExpertsForDebate)
	cfg.Workflow.ConfidenceFloor = getEnvFloat("CONFIDENCE_FLOOR", cfg.Workflow.ConfidenceFloor)
	cfg.Workflow.ConfidenceCeiling = getEnvFloat("CONFIDENCE_CEILING", cfg.Workflow.ConfidenceCeiling)

	if h := getEnvInt("SESSION_IDLE_HOURS", 0); h > 0 {
		cfg.Session.IdleTimeout = time.Duration(h) * time.Hour
	}
	cfg.Session.MaxHistoryTurns = getEnvInt("MAX_HISTORY_TURNS", cfg.Session.MaxHistoryTurns)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
