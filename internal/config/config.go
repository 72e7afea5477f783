package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Canvas   CanvasConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider       string // "openai" or "ollama"
	LLMModel          string // e.g. "gpt-4o-mini", "llama3"
	VisionModel       string // model used for canvas image analysis
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OllamaBaseURL     string
	EmbeddingProvider string // "openai" or "ollama"
	EmbeddingModel    string
	RequestTimeoutSec int // per external call upper bound
}

type CanvasConfig struct {
	UploadDir  string
	TTLMinutes int // recent-canvas cache window
}

type ChatConfig struct {
	HistoryLimit  int    // messages of rolling context per turn
	IngestTopic   string // watermill topic for document ingestion
	ChunkSize     int
	ChunkOverlap  int
	StreamBufSize int // event channel buffer per turn
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			VisionModel:       getEnv("VISION_MODEL", "gpt-4o"),
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			RequestTimeoutSec: getEnvAsInt("AI_REQUEST_TIMEOUT_SEC", 120),
		},
		Canvas: CanvasConfig{
			UploadDir:  getEnv("CANVAS_UPLOAD_DIR", "canvas_uploads"),
			TTLMinutes: getEnvAsInt("CANVAS_TTL_MINUTES", 30),
		},
		Chat: ChatConfig{
			HistoryLimit:  getEnvAsInt("CHAT_HISTORY_LIMIT", 10),
			IngestTopic:   getEnv("INGEST_DOCUMENT_TOPIC_NAME", "INGEST_DOCUMENT"),
			ChunkSize:     getEnvAsInt("INGEST_CHUNK_SIZE", 1500),
			ChunkOverlap:  getEnvAsInt("INGEST_CHUNK_OVERLAP", 200),
			StreamBufSize: getEnvAsInt("CHAT_STREAM_BUFFER", 32),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
