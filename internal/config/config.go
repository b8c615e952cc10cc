package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	DBDriver string
	DBDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FrontendOrigins []string

	// google sign-in, disabled without a client id
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// AI provider
	AIProvider        string
	AIModel           string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OllamaBaseURL     string
	GenerationTimeout time.Duration
	GenerationRetries int

	// exchange
	ChatHistoryMode  string
	ChatHistoryLimit int
	DefaultCredits   int

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	LogLevel string
	LogDir   string
}

const (
	HistoryStateless = "stateless"
	HistoryAugmented = "history"
)

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for empty keys.
func FromEnv(getenv func(string) string) Config {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		if v := get(key, ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		if v := get(key, ""); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				return d
			}
		}
		return def
	}

	driver := strings.ToLower(get("DB_DRIVER", "sqlite"))
	dsn := get("DB_DSN", "")
	if dsn == "" {
		switch driver {
		case "mysql":
			// app:apppass@tcp(127.0.0.1:3306)/pentabot?charset=utf8mb4&parseTime=true&loc=Local
			dsn = "app:apppass@tcp(127.0.0.1:3306)/pentabot?charset=utf8mb4&parseTime=true&loc=Local"
		case "postgres":
			dsn = "host=127.0.0.1 user=postgres password=postgres dbname=pentabot port=5432 sslmode=disable"
		default:
			dsn = "file:pentabot.db?_pragma=foreign_keys(1)"
		}
	}

	historyMode := strings.ToLower(get("CHAT_HISTORY_MODE", HistoryStateless))
	if historyMode != HistoryAugmented {
		historyMode = HistoryStateless
	}

	historyLimit := getInt("CHAT_HISTORY_LIMIT", 10)
	if historyLimit <= 0 || historyLimit > 100 {
		historyLimit = 10
	}

	retries := getInt("GENERATION_RETRIES", 2)
	if retries < 0 {
		retries = 0
	}

	concurrency := getInt("WORKER_CONCURRENCY", 2)
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}

	var origins []string
	for _, o := range strings.Split(get("FRONTEND_ORIGINS", "http://localhost:5173,https://pentabot.vercel.app"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port: get("PORT", "5000"),
		Env:  get("APP_ENV", "development"),

		DBDriver: driver,
		DBDSN:    dsn,

		JWTSecret: get("JWT_SECRET", "dev-secret-change-me"),
		JWTTTL:    getDuration("JWT_TTL", 7*24*time.Hour),

		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		FrontendOrigins: origins,

		GoogleClientID:     get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: get("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  get("GOOGLE_CALLBACK_URL", "http://localhost:5000/api/auth/google/callback"),

		AIProvider:        strings.ToLower(get("AI_PROVIDER", "gemini")),
		AIModel:           get("AI_MODEL", ""),
		GeminiAPIKey:      get("GEMINI_API_KEY", ""),
		OpenAIAPIKey:      get("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     get("OPENAI_BASE_URL", ""),
		OpenRouterAPIKey:  get("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: get("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OllamaBaseURL:     get("OLLAMA_BASE_URL", "http://localhost:11434"),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 60*time.Second),
		GenerationRetries: retries,

		ChatHistoryMode:  historyMode,
		ChatHistoryLimit: historyLimit,
		DefaultCredits:   getInt("DEFAULT_CREDITS", 1250),

		RabbitURL:         get("RABBIT_URL", ""),
		RabbitQueue:       get("RABBIT_QUEUE", "chat_jobs"),
		WorkerConcurrency: concurrency,

		LogLevel: get("LOG_LEVEL", "info"),
		LogDir:   get("LOG_DIR", ""),
	}
}

func (c Config) Production() bool {
	return c.Env == "production"
}
