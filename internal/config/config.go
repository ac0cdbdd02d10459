// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string
	LogDir   string

	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable only behind a
	// proxy that overwrites them.
	TrustProxy bool

	SessionTTL         time.Duration
	SessionMaxMessages int
	SweepInterval      time.Duration

	RateLimitStrategy string
	RateLimitWindow   time.Duration
	RateLimitMax      int

	MaxMessageLength int
	LLMTimeout       time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ParamPrefix         string
	TenantProfilesFile  string
	TenantProfilesParam string

	StoreBackend  string
	DynamoDBTable string

	JWTSecret string

	TriagePolicyFile string

	KafkaBrokers string
	KafkaTopic   string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

// Load reads .env files when present, then the process environment.
// Malformed numeric values are errors rather than silent defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var errs []error
	intEnv := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolEnv := func(key string, def bool) bool {
		v, err := getBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		AppHost:  getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort: firstEnv("APP_PORT", "HTTP_PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", ""),

		TrustProxy: boolEnv("TRUST_PROXY", false),

		SessionTTL:         time.Duration(intEnv("SESSION_TTL_MINUTES", 30)) * time.Minute,
		SessionMaxMessages: intEnv("SESSION_MAX_MESSAGES", 12),
		SweepInterval:      time.Duration(intEnv("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,

		RateLimitStrategy: strings.ToLower(getEnv("RATE_LIMIT_STRATEGY", "fixed")),
		RateLimitWindow:   time.Duration(intEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitMax:      intEnv("RATE_LIMIT_MAX", 20),

		MaxMessageLength: intEnv("MAX_MESSAGE_LENGTH", 2000),
		LLMTimeout:       time.Duration(intEnv("LLM_TIMEOUT_SECONDS", 20)) * time.Second,

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		ParamPrefix:         getEnv("PARAM_PREFIX", "/chatdesk"),
		TenantProfilesFile:  getEnv("TENANT_PROFILES_FILE", ""),
		TenantProfilesParam: getEnv("TENANT_PROFILES_PARAM", ""),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		DynamoDBTable: getEnv("DYNAMODB_TABLE", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		TriagePolicyFile: getEnv("TRIAGE_POLICY_FILE", ""),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "chatdesk.ticket-events"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "chatdesk")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("config: SESSION_TTL_MINUTES must be positive"))
	}
	if c.SessionMaxMessages < 2 || c.SessionMaxMessages%2 != 0 {
		errs = append(errs, errors.New("config: SESSION_MAX_MESSAGES must be a positive even number"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: SWEEP_INTERVAL_MINUTES must be positive"))
	}
	if c.RateLimitWindow <= 0 || c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("config: RATE_LIMIT_WINDOW_SECONDS and RATE_LIMIT_MAX must be positive"))
	}
	switch c.RateLimitStrategy {
	case "fixed", "token":
	default:
		errs = append(errs, fmt.Errorf("config: unknown RATE_LIMIT_STRATEGY %q", c.RateLimitStrategy))
	}
	if c.MaxMessageLength < 2 {
		errs = append(errs, errors.New("config: MAX_MESSAGE_LENGTH must be at least 2"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("config: LLM_TIMEOUT_SECONDS must be positive"))
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			errs = append(errs, errors.New("config: DYNAMODB_TABLE is required for the dynamodb store"))
		}
	case StorePostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			errs = append(errs, errors.New("config: DB_HOST and DB_DATABASE are required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.AppEnv == "production" {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("config: in production JWT_SECRET is required"))
		}
		if c.StoreBackend == StoreMemory {
			errs = append(errs, errors.New("config: in production STORE_BACKEND must be persistent"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
