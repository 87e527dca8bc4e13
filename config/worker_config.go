package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string `toml:"port"`
	Environment string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	Timezone    string `toml:"timezone"`

	// Storage
	DatabaseURL   string `toml:"database_url"`
	RedisURL      string `toml:"redis_url"`
	MongoDBURL    string `toml:"mongodb_url"`
	MongoDBName   string `toml:"mongodb_database"`
	Neo4jURL      string `toml:"neo4j_url"`
	Neo4jUsername string `toml:"neo4j_username"`
	Neo4jPassword string `toml:"neo4j_password"`
	Neo4jDatabase string `toml:"neo4j_database"`
	DBMaxConns    int    `toml:"db_max_conns"`
	RedisPoolSize int    `toml:"redis_pool_size"`

	// Google
	GoogleClientID          string `toml:"google_client_id"`
	GoogleClientSecret      string `toml:"google_client_secret"`
	GoogleRedirectURL       string `toml:"google_redirect_url"`
	PubSubTopic             string `toml:"pubsub_topic"`
	PubSubVerificationToken string `toml:"pubsub_verification_token"`

	// OpenAI
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	OpenAIModel     string  `toml:"openai_model"`
	OpenAIBaseURL   string  `toml:"openai_base_url"`
	OpenAIMaxTokens int     `toml:"openai_max_tokens"`
	OpenAIRPS       float64 `toml:"openai_rps"`
	OpenAIBurst     int     `toml:"openai_burst"`
	DebugPrompts    bool    `toml:"debug_prompts"`

	// Security
	JWTSecret      string   `toml:"jwt_secret"`
	EncryptionKey  string   `toml:"encryption_key"`
	AllowedOrigins []string `toml:"allowed_origins"`

	// Worker
	WorkerID          string        `toml:"worker_id"`
	WorkerConcurrency int           `toml:"worker_concurrency"`
	SweepConcurrency  int           `toml:"sweep_concurrency"`
	JobTimeout        time.Duration `toml:"job_timeout"`
	CallTimeout       time.Duration `toml:"call_timeout"`

	// Queue (Redis Stream)
	QueueStream      string        `toml:"queue_stream"`
	QueueGroup       string        `toml:"queue_group"`
	QueueBatchSize   int           `toml:"queue_batch_size"`
	QueueBlock       time.Duration `toml:"queue_block"`
	QueueMaxRetries  int           `toml:"queue_max_retries"`
	QueuePendingIdle time.Duration `toml:"queue_pending_idle"`

	// Scheduler
	SchedulerEnabled bool          `toml:"scheduler_enabled"`
	PollInterval     time.Duration `toml:"poll_interval"`
}

func defaults() *Config {
	return &Config{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
		Timezone:    "UTC",

		MongoDBName:   "gmail_triage",
		Neo4jUsername: "neo4j",
		Neo4jDatabase: "neo4j",
		DBMaxConns:    25,
		RedisPoolSize: 50,

		OpenAIModel:     "gpt-4o-mini",
		OpenAIMaxTokens: 10000,
		OpenAIRPS:       2,
		OpenAIBurst:     4,

		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		WorkerID:          generateWorkerID(),
		WorkerConcurrency: 8,
		SweepConcurrency:  4,
		JobTimeout:        2 * time.Minute,
		CallTimeout:       30 * time.Second,

		QueueStream:      "triage:jobs",
		QueueGroup:       "triage-workers",
		QueueBatchSize:   20,
		QueueBlock:       5 * time.Second,
		QueueMaxRetries:  5,
		QueuePendingIdle: time.Minute,

		SchedulerEnabled: true,
		PollInterval:     5 * time.Minute,
	}
}

// Load builds the configuration from defaults, then the optional TOML file
// named by CONFIG_FILE, then environment variables. Later sources win.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENV", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.MongoDBURL = getEnv("MONGODB_URL", cfg.MongoDBURL)
	cfg.MongoDBName = getEnv("MONGODB_DATABASE", cfg.MongoDBName)
	cfg.Neo4jURL = getEnv("NEO4J_URL", cfg.Neo4jURL)
	cfg.Neo4jUsername = getEnv("NEO4J_USERNAME", cfg.Neo4jUsername)
	cfg.Neo4jPassword = getEnv("NEO4J_PASSWORD", cfg.Neo4jPassword)
	cfg.Neo4jDatabase = getEnv("NEO4J_DATABASE", cfg.Neo4jDatabase)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", cfg.RedisPoolSize)

	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret)
	cfg.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL)
	cfg.PubSubTopic = getEnv("PUBSUB_TOPIC", cfg.PubSubTopic)
	cfg.PubSubVerificationToken = getEnv("PUBSUB_VERIFICATION_TOKEN", cfg.PubSubVerificationToken)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIMaxTokens = getEnvInt("OPENAI_MAX_TOKENS", cfg.OpenAIMaxTokens)
	cfg.OpenAIRPS = getEnvFloat("OPENAI_RPS", cfg.OpenAIRPS)
	cfg.OpenAIBurst = getEnvInt("OPENAI_BURST", cfg.OpenAIBurst)
	cfg.DebugPrompts = cfg.DebugPrompts || strings.Contains(os.Getenv("DEBUG"), "OPENAI")

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.EncryptionKey = getEnv("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.AllowedOrigins = getEnvSlice("ALLOWED_ORIGINS", cfg.AllowedOrigins)

	cfg.WorkerID = getEnv("WORKER_ID", cfg.WorkerID)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	cfg.SweepConcurrency = getEnvInt("SWEEP_CONCURRENCY", cfg.SweepConcurrency)
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", cfg.JobTimeout)
	cfg.CallTimeout = getEnvDuration("CALL_TIMEOUT", cfg.CallTimeout)

	cfg.QueueStream = getEnv("QUEUE_STREAM", cfg.QueueStream)
	cfg.QueueGroup = getEnv("QUEUE_GROUP", cfg.QueueGroup)
	cfg.QueueBatchSize = getEnvInt("QUEUE_BATCH_SIZE", cfg.QueueBatchSize)
	cfg.QueueBlock = getEnvDuration("QUEUE_BLOCK", cfg.QueueBlock)
	cfg.QueueMaxRetries = getEnvInt("QUEUE_MAX_RETRIES", cfg.QueueMaxRetries)
	cfg.QueuePendingIdle = getEnvDuration("QUEUE_PENDING_IDLE", cfg.QueuePendingIdle)

	cfg.SchedulerEnabled = getEnvBool("SCHEDULER_ENABLED", cfg.SchedulerEnabled)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings a given run mode cannot start without.
func (c *Config) Validate(mode string) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if mode == "worker" || mode == "all" {
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET")
		}
	}
	if (mode == "api" || mode == "all") && c.PubSubVerificationToken == "" && c.PubSubTopic != "" {
		missing = append(missing, "PUBSUB_VERIFICATION_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location returns the zone used for memory and wrapup windows.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
