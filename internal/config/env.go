package config

import (
	"os"
	"strconv"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
)

type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool

	ChunkSize      int
	ChunkOverlap   int
	MinChars       int
	OCR            bool
	LanguageDetect bool
	Dedupe         bool
	Workers        int
	UseReadability bool
	NativePDF      bool

	UploadDir      string
	DataSourceRoot string

	DatabaseURL    string
	EmbedBatchSize int
	AIAPIKey       string
	EmbedModel     string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	S3Endpoint   string
	BucketName   string

	JobQueueSize int
	JobWorkers   int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		ChunkSize:      getEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 64),
		MinChars:       getEnvInt("MIN_CHARS", 12),
		OCR:            getEnvBool("INGEST_OCR", false),
		LanguageDetect: getEnvBool("INGEST_LANG_DETECT", true),
		Dedupe:         getEnvBool("INGEST_DEDUPE", true),
		Workers:        getEnvInt("INGEST_WORKERS", 4),
		UseReadability: getEnvBool("USE_READABILITY", false),
		NativePDF:      getEnvBool("NATIVE_PDF", true),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		DataSourceRoot: getEnv("DATA_SOURCE_ROOT", "./data"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 16),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		BucketName:   getEnv("BUCKET_NAME", ""),

		JobQueueSize: getEnvInt("JOB_QUEUE_SIZE", 64),
		JobWorkers:   getEnvInt("JOB_WORKERS", 1),
	}
}

// IngestOptions returns the pipeline defaults derived from the environment.
func (c *Config) IngestOptions() models.IngestOptions {
	return models.IngestOptions{
		ChunkSize:      c.ChunkSize,
		Overlap:        c.ChunkOverlap,
		OCR:            c.OCR,
		LanguageDetect: c.LanguageDetect,
		Dedupe:         c.Dedupe,
		MinChars:       c.MinChars,
	}
}

// LoggerConfig builds the logger settings from LOG_LEVEL and LOG_JSON.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(c.LogLevel)
	lc.JSON = c.LogJSON
	return lc
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		charmlog.Warn("env value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
