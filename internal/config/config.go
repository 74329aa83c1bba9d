package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBURL             string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Pricing   PricingConfig
	Search    SearchConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Push      PushConfig

	VendorDictionaryPath string
	NormalizeOnStartup   bool
	NormalizeInterval    time.Duration
	UploadMaxBytes       int64
}

// PricingConfig seeds the settings row on first read.
type PricingConfig struct {
	IVA      float64
	IIBB     float64
	Profit   float64
	Margin   float64
	Rounding string
}

type SearchConfig struct {
	CandidatePool int
	MinScore      float64
	VariantBonus  float64
	DefaultLimit  int
	SuggestLimit  int
}

type CacheConfig struct {
	Driver        string
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// PushConfig selects where catalog gauges are pushed. An empty exporter
// disables pushing.
type PushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

type RateLimitConfig struct {
	Enabled      bool
	SuggestRate  float64
	SuggestBurst int
}

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverOff    = "off"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "quicksearch"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quicksearch"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "quicksearch.db"),
		DBURL:             strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 300),
		Pricing: PricingConfig{
			IVA:      getenvFloat("DEFAULT_IVA", 1.21),
			IIBB:     getenvFloat("DEFAULT_IIBB", 1.025),
			Profit:   getenvFloat("DEFAULT_PROFIT", 1.0),
			Margin:   getenvFloat("DEFAULT_MARGIN", 1.5),
			Rounding: strings.ToLower(getenv("ROUNDING_STRATEGY", "none")),
		},
		Search: SearchConfig{
			CandidatePool: getenvInt("SEARCH_CANDIDATE_POOL", 5000),
			MinScore:      getenvFloat("SEARCH_MIN_SCORE", 60),
			VariantBonus:  getenvFloat("SEARCH_VARIANT_BONUS", 15),
			DefaultLimit:  getenvInt("SEARCH_DEFAULT_LIMIT", 50),
			SuggestLimit:  getenvInt("SUGGEST_LIMIT", 20),
		},
		Cache: CacheConfig{
			Driver:        strings.ToLower(getenv("SUGGEST_CACHE_DRIVER", CacheDriverMemory)),
			Size:          getenvInt("SUGGEST_CACHE_SIZE", 1024),
			TTL:           time.Duration(getenvInt("SUGGEST_CACHE_TTL_SECONDS", 60)) * time.Second,
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("REDIS_DB", 0),
			RedisPrefix:   getenv("REDIS_PREFIX", "quicksearch:suggest:"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("SUGGEST_RATE_LIMIT_ENABLED", true),
			SuggestRate:  getenvFloat("SUGGEST_RATE_PER_SECOND", 20),
			SuggestBurst: getenvInt("SUGGEST_RATE_BURST", 40),
		},
		Push: PushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
			Interval:  time.Duration(getenvInt("METRICS_PUSH_INTERVAL_SECONDS", 300)) * time.Second,
		},
		VendorDictionaryPath: strings.TrimSpace(getenv("VENDOR_DICTIONARY_PATH", "")),
		NormalizeOnStartup:   getenvBool("NORMALIZE_ON_STARTUP", true),
		NormalizeInterval:    time.Duration(getenvInt("NORMALIZE_INTERVAL_SECONDS", 0)) * time.Second,
		UploadMaxBytes:       getenvInt64("UPLOAD_MAX_BYTES", 32<<20),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return def
	}
	return parsed
}
