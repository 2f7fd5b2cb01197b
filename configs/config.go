package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"stockfolio/internal/domain"
	"stockfolio/internal/utils"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const devJWTSecret = "default-secret-change-in-production"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Log       LogConfig
	Market    MarketConfig
	Sync      SyncConfig
	Prices    PriceConfig
	Quote     QuoteConfig
	Scheduler SchedulerConfig
	Brokers   map[domain.Broker]string // broker -> bridge base URL
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    string
	OpsPort string
	Env     string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	URL      string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration; an empty URL disables Redis
type RedisConfig struct {
	URL string
}

// AuthConfig holds the shared JWT secret
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// MarketConfig describes the exchange trading session
type MarketConfig struct {
	Timezone string
	Open     string // HH:MM
	Close    string // HH:MM
	Holidays []time.Time
	LotSizes map[string]int64 // underlying -> contract lot size, overriding the built-in table
}

// SyncConfig holds broker sync settings
type SyncConfig struct {
	PageSize          int
	OffHoursStaleness time.Duration
	BrokerTimeout     time.Duration
	GlobalLockLease   time.Duration
	AccountLockLease  time.Duration
}

// PriceConfig holds market price cache settings
type PriceConfig struct {
	Freshness      time.Duration
	MaxStaleness   time.Duration
	StoreTTLMargin time.Duration
	WarmupTimeout  time.Duration
}

// StoreTTL is the horizon after which the store may drop a price row
func (p PriceConfig) StoreTTL() time.Duration {
	return p.MaxStaleness + p.StoreTTLMargin
}

// QuoteConfig holds quote source settings
type QuoteConfig struct {
	URL          string
	APIKey       string
	SymbolSuffix string
	Timeout      time.Duration
}

// SchedulerConfig holds cron expressions (with seconds field)
type SchedulerConfig struct {
	Enabled     bool
	MarketHours string
	OffHours    string
	PricePurge  string
}

// Load loads configuration from the environment, reading .env when present
func Load() (*Config, error) {
	_ = godotenv.Load()

	holidays, err := parseHolidays(getEnv("MARKET_HOLIDAYS", ""))
	if err != nil {
		return nil, err
	}

	brokers, err := parseBrokerBridges(getEnv("BROKER_BRIDGES", ""))
	if err != nil {
		return nil, err
	}

	lotSizes, err := parseLotSizes(getEnv("LOT_SIZE_OVERRIDES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			OpsPort: getEnv("OPS_PORT", "8081"),
			Env:     getEnv("GO_ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORAGE_DRIVER", StoragePostgres),
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", devJWTSecret),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
		Market: MarketConfig{
			Timezone: getEnv("MARKET_TIMEZONE", "Asia/Kolkata"),
			Open:     getEnv("MARKET_OPEN", "09:15"),
			Close:    getEnv("MARKET_CLOSE", "15:30"),
			Holidays: holidays,
			LotSizes: lotSizes,
		},
		Sync: SyncConfig{
			PageSize:          getEnvAsInt("SYNC_PAGE_SIZE", 50),
			OffHoursStaleness: getEnvAsDuration("SYNC_OFF_HOURS_STALENESS", 30*time.Minute),
			BrokerTimeout:     getEnvAsDuration("SYNC_BROKER_TIMEOUT", 20*time.Second),
			GlobalLockLease:   getEnvAsDuration("SYNC_GLOBAL_LOCK_LEASE", time.Hour),
			AccountLockLease:  getEnvAsDuration("SYNC_ACCOUNT_LOCK_LEASE", 10*time.Minute),
		},
		Prices: PriceConfig{
			Freshness:      getEnvAsDuration("PRICE_FRESHNESS", 15*time.Second),
			MaxStaleness:   getEnvAsDuration("PRICE_MAX_STALENESS", 24*time.Hour),
			StoreTTLMargin: getEnvAsDuration("PRICE_STORE_TTL_MARGIN", time.Hour),
			WarmupTimeout:  getEnvAsDuration("PRICE_WARMUP_TIMEOUT", 30*time.Second),
		},
		Quote: QuoteConfig{
			URL:          getEnv("QUOTE_API_URL", "https://www.alphavantage.co"),
			APIKey:       getEnv("ALPHA_VANTAGE_API_KEY", ""),
			SymbolSuffix: getEnv("QUOTE_SYMBOL_SUFFIX", ".BSE"),
			Timeout:      getEnvAsDuration("QUOTE_TIMEOUT", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getEnvAsBool("SCHEDULER_ENABLED", true),
			MarketHours: getEnv("SCHEDULE_MARKET_HOURS", "0 */5 9-15 * * MON-FRI"),
			OffHours:    getEnv("SCHEDULE_OFF_HOURS", "0 0 * * * *"),
			PricePurge:  getEnv("SCHEDULE_PRICE_PURGE", "0 30 2 * * *"),
		},
		Brokers: brokers,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StoragePostgres)
		}
		if c.Database.MaxConns < 1 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("invalid pool size: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.Database.MinConns, c.Database.MaxConns)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q (must be %s or %s)", c.Database.Driver, StoragePostgres, StorageMemory)
	}

	if c.Server.Env == "production" && c.Auth.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set when GO_ENV=production")
	}

	if _, err := utils.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.Market.Timezone, err)
	}
	if _, _, err := ParseClock(c.Market.Open); err != nil {
		return fmt.Errorf("invalid MARKET_OPEN: %w", err)
	}
	if _, _, err := ParseClock(c.Market.Close); err != nil {
		return fmt.Errorf("invalid MARKET_CLOSE: %w", err)
	}

	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive, got %d", c.Sync.PageSize)
	}
	if c.Prices.Freshness <= 0 || c.Prices.MaxStaleness < c.Prices.Freshness {
		return fmt.Errorf("PRICE_MAX_STALENESS (%s) must be >= PRICE_FRESHNESS (%s) > 0",
			c.Prices.MaxStaleness, c.Prices.Freshness)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, expr := range map[string]string{
		"SCHEDULE_MARKET_HOURS": c.Scheduler.MarketHours,
		"SCHEDULE_OFF_HOURS":    c.Scheduler.OffHours,
		"SCHEDULE_PRICE_PURGE":  c.Scheduler.PricePurge,
	} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, expr, err)
		}
	}

	return nil
}

// ParseClock parses an HH:MM wall-clock time
func ParseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return t.Hour(), t.Minute(), nil
}

// parseBrokerBridges parses "zerodha=http://host:9001,upstox=http://host:9002"
func parseBrokerBridges(value string) (map[domain.Broker]string, error) {
	bridges := make(map[domain.Broker]string)
	if strings.TrimSpace(value) == "" {
		return bridges, nil
	}

	for _, entry := range strings.Split(value, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || url == "" {
			return nil, fmt.Errorf("invalid BROKER_BRIDGES entry %q (expected broker=url)", entry)
		}
		broker, err := domain.ParseBroker(name)
		if err != nil {
			return nil, fmt.Errorf("invalid BROKER_BRIDGES entry %q: %w", entry, err)
		}
		bridges[broker] = strings.TrimRight(url, "/")
	}

	return bridges, nil
}

// parseHolidays parses a comma separated list of YYYY-MM-DD dates
func parseHolidays(value string) ([]time.Time, error) {
	var holidays []time.Time
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MARKET_HOLIDAYS date %q: %w", raw, err)
		}
		holidays = append(holidays, day)
	}
	return holidays, nil
}

// parseLotSizes reads "NIFTY=75,BANKNIFTY=35"
func parseLotSizes(value string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.ToUpper(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid LOT_SIZE_OVERRIDES entry %q (want UNDERLYING=size)", pair)
		}
		size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid LOT_SIZE_OVERRIDES size for %s: %q", name, raw)
		}
		sizes[name] = size
	}
	return sizes, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
