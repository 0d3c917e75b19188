package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SourceConfig holds the per-marketplace crawl budget.
type SourceConfig struct {
	BaseURL       string
	MaxPages      int
	PageBatch     int
	PageDelay     time.Duration
	DetailWorkers int
	DetailTimeout time.Duration
	RenderWait    time.Duration
	// Exclude lists keywords that mark a scanned item as a category mismatch
	// unless the query itself mentions the keyword.
	Exclude []string
}

type Config struct {
	ListenAddr         string
	LogLevel           string
	CORSOrigins        []string
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration
	DefaultSources     []string
	MaxResults         int
	PerPage            int

	Headless      bool
	RenderRetries int
	RenderTimeout time.Duration
	HTTPTimeout   time.Duration
	HTTPRetries   int
	HostRPS       float64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	Sources map[string]SourceConfig
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":3000",
		LogLevel:           "info",
		CacheTTL:           5 * time.Minute,
		CacheSweepInterval: 10 * time.Minute,
		DefaultSources:     []string{"ss", "andele", "osta"},
		MaxResults:         300,
		PerPage:            20,
		Headless:           true,
		RenderRetries:      2,
		RenderTimeout:      30 * time.Second,
		HTTPTimeout:        15 * time.Second,
		HTTPRetries:        2,
		HostRPS:            4,
		DBPort:             5432,
		DBUser:             "postgres",
		DBName:             "secondhand",
		DBSSLMode:          "disable",
		Sources: map[string]SourceConfig{
			"ss": {
				BaseURL:       "https://www.ss.com",
				MaxPages:      10,
				PageBatch:     3,
				PageDelay:     300 * time.Millisecond,
				DetailWorkers: 6,
				DetailTimeout: 12 * time.Second,
				Exclude:       []string{"vāciņš", "maciņš", "чехол", "case", "cover"},
			},
			"andele": {
				BaseURL:       "https://www.andelemandele.lv",
				MaxPages:      7,
				PageBatch:     2,
				PageDelay:     time.Second,
				DetailWorkers: 8,
				DetailTimeout: 10 * time.Second,
				RenderWait:    1500 * time.Millisecond,
				Exclude:       []string{"vāciņš", "maciņš", "чехол", "case", "cover"},
			},
			"osta": {
				BaseURL:       "https://www.osta.ee",
				MaxPages:      10,
				PageBatch:     2,
				PageDelay:     500 * time.Millisecond,
				DetailWorkers: 5,
				DetailTimeout: 15 * time.Second,
				RenderWait:    3 * time.Second,
				Exclude:       []string{"ümbris", "kaaned", "kaitseklaas", "чехол", "case", "cover"},
			},
		},
	}
}

// Load returns DefaultConfig overlaid with environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	var err error

	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	// Empty CORS_ORIGINS lets any browser origin call the API.
	if v := getenv("CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = SplitList(v)
	}
	if v := getenv("DEFAULT_SOURCES", ""); v != "" {
		cfg.DefaultSources = SplitList(v)
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.CacheSweepInterval, err = getDuration("CACHE_SWEEP_INTERVAL", cfg.CacheSweepInterval); err != nil {
		return nil, err
	}
	if cfg.MaxResults, err = getInt("MAX_RESULTS", cfg.MaxResults); err != nil {
		return nil, err
	}
	if cfg.PerPage, err = getInt("PER_PAGE", cfg.PerPage); err != nil {
		return nil, err
	}
	if cfg.Headless, err = getBool("HEADLESS", cfg.Headless); err != nil {
		return nil, err
	}
	if cfg.RenderRetries, err = getInt("RENDER_RETRIES", cfg.RenderRetries); err != nil {
		return nil, err
	}
	if cfg.RenderTimeout, err = getDuration("RENDER_TIMEOUT", cfg.RenderTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPRetries, err = getInt("HTTP_RETRIES", cfg.HTTPRetries); err != nil {
		return nil, err
	}
	if cfg.HostRPS, err = getFloat("HOST_RPS", cfg.HostRPS); err != nil {
		return nil, err
	}

	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenv("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = getInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBHost = getenv("DB_HOST", cfg.DBHost)
	if cfg.DBPort, err = getInt("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}
	cfg.DBUser = getenv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getenv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getenv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getenv("DB_SSLMODE", cfg.DBSSLMode)

	for id, sc := range cfg.Sources {
		if sc, err = loadSource(id, sc); err != nil {
			return nil, err
		}
		cfg.Sources[id] = sc
	}

	return cfg, nil
}

func loadSource(id string, sc SourceConfig) (SourceConfig, error) {
	prefix := "SOURCE_" + strings.ToUpper(id) + "_"
	var err error

	sc.BaseURL = getenv(prefix+"BASE_URL", sc.BaseURL)
	if sc.MaxPages, err = getInt(prefix+"MAX_PAGES", sc.MaxPages); err != nil {
		return sc, err
	}
	if sc.PageBatch, err = getInt(prefix+"PAGE_BATCH", sc.PageBatch); err != nil {
		return sc, err
	}
	if sc.PageDelay, err = getDuration(prefix+"PAGE_DELAY", sc.PageDelay); err != nil {
		return sc, err
	}
	if sc.DetailWorkers, err = getInt(prefix+"DETAIL_WORKERS", sc.DetailWorkers); err != nil {
		return sc, err
	}
	if sc.DetailTimeout, err = getDuration(prefix+"DETAIL_TIMEOUT", sc.DetailTimeout); err != nil {
		return sc, err
	}
	if sc.RenderWait, err = getDuration(prefix+"RENDER_WAIT", sc.RenderWait); err != nil {
		return sc, err
	}
	if v, ok := os.LookupEnv(prefix + "EXCLUDE"); ok {
		sc.Exclude = SplitList(v)
	}
	return sc, nil
}

// Source returns the named source settings, or zero settings when absent.
func (c *Config) Source(id string) SourceConfig {
	return c.Sources[id]
}

// DSN returns the Postgres connection string, or "" when no database is configured.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBHost == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return n, nil
}

func getFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return f, nil
}

func getBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return b, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", k, v, err)
	}
	return d, nil
}
