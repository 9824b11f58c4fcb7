package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pandawa-stack/ai-bank-recon/internal/reconciliation"
)

// Config holds all configuration for the reconciliation service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Environment    string   `yaml:"environment"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EngineConfig holds matching engine configuration. It doubles as the
// options payload accepted by the API, hence the json tags.
type EngineConfig struct {
	DateToleranceDays  int      `yaml:"date_tolerance_days" json:"date_tolerance_days"`
	AmountTolerance    float64  `yaml:"amount_tolerance" json:"amount_tolerance"`
	DateWeight         float64  `yaml:"date_weight" json:"date_weight"`
	AmountWeight       float64  `yaml:"amount_weight" json:"amount_weight"`
	FuzzyThreshold     float64  `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	FuzzyMetric        string   `yaml:"fuzzy_metric" json:"fuzzy_metric"`
	FuzzyUnbounded     bool     `yaml:"fuzzy_unbounded" json:"fuzzy_unbounded"`
	FeeKeywords        []string `yaml:"fee_keywords" json:"fee_keywords"`
	SmallAmountCeiling float64  `yaml:"small_amount_ceiling" json:"small_amount_ceiling"`
	CutoffDate         string   `yaml:"cutoff_date" json:"cutoff_date"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := LoadFromEnv()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 3010),
			Environment:    getEnv("ENVIRONMENT", "development"),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Engine: EngineConfig{
			DateToleranceDays:  getEnvInt("RECON_DATE_TOLERANCE_DAYS", 3),
			AmountTolerance:    getEnvFloat("RECON_AMOUNT_TOLERANCE", 0.01),
			DateWeight:         getEnvFloat("RECON_DATE_WEIGHT", 1.0),
			AmountWeight:       getEnvFloat("RECON_AMOUNT_WEIGHT", 1.0),
			FuzzyThreshold:     getEnvFloat("RECON_FUZZY_THRESHOLD", 0.75),
			FuzzyMetric:        getEnv("RECON_FUZZY_METRIC", "levenshtein"),
			FuzzyUnbounded:     getEnvBool("RECON_FUZZY_UNBOUNDED", false),
			FeeKeywords:        getEnvList("RECON_FEE_KEYWORDS", nil),
			SmallAmountCeiling: getEnvFloat("RECON_SMALL_AMOUNT_CEILING", 100),
			CutoffDate:         getEnv("RECON_CUTOFF_DATE", ""),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("DATABASE_PATH", "recon.db"),
		},
		Worker: WorkerConfig{
			Workers:         getEnvInt("WORKER_COUNT", 4),
			QueueSize:       getEnvInt("WORKER_QUEUE_SIZE", 64),
			ShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// EngineOptions converts the engine section into matcher options.
func (c *EngineConfig) EngineOptions() (reconciliation.Options, error) {
	opts := reconciliation.DefaultOptions()
	opts.DateToleranceDays = c.DateToleranceDays
	opts.AmountTolerance = decimal.NewFromFloat(c.AmountTolerance)
	opts.DateWeight = c.DateWeight
	opts.AmountWeight = c.AmountWeight
	opts.FuzzyThreshold = c.FuzzyThreshold
	opts.FuzzyMetric = reconciliation.MetricByName(c.FuzzyMetric)
	opts.FuzzyUnbounded = c.FuzzyUnbounded
	opts.SmallAmountCeiling = decimal.NewFromFloat(c.SmallAmountCeiling)
	if len(c.FeeKeywords) > 0 {
		opts.FeeKeywords = c.FeeKeywords
	}
	if c.CutoffDate != "" {
		cutoff, err := time.Parse("2006-01-02", c.CutoffDate)
		if err != nil {
			return opts, fmt.Errorf("invalid cutoff_date %q: %w", c.CutoffDate, err)
		}
		opts.CutoffDate = cutoff
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
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
