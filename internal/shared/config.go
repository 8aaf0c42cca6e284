package shared

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	NewbookBase string
	NewbookKey  string
	NewbookRPS  int

	PollingEnabled    bool
	PollInterval      time.Duration
	BufferTTL         time.Duration
	DedupWindow       time.Duration
	BootstrapLookback time.Duration
	SweepInterval     time.Duration
	PollWorkers       int
	CycleLease        time.Duration
	DirectoryCacheTTL time.Duration
	FeedCursorGrace   time.Duration
}

var defaults = map[string]any{
	"APP_ENV":                    "prod",
	"HTTP_ADDR":                  ":8080",
	"METRICS_ADDR":               ":9100",
	"MYSQL_DSN":                  "root:root@tcp(localhost:3306)/feed?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
	"REDIS_ADDR":                 "localhost:6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"NEWBOOK_BASE_URL":           "https://api.newbook.cloud/rest",
	"NEWBOOK_API_KEY":            "",
	"NEWBOOK_RPS":                5,
	"POLLING_ENABLED":            true,
	"POLL_INTERVAL_SECONDS":      60,
	"BUFFER_TTL_SECONDS":         300,
	"DEDUP_WINDOW_SECONDS":       30,
	"BOOTSTRAP_LOOKBACK_SECONDS": 120,
	"SWEEP_INTERVAL_SECONDS":     3600,
	"POLL_WORKERS":               4,
	"CYCLE_LEASE_SECONDS":        300,
	"DIRECTORY_CACHE_SECONDS":    30,
	"FEED_CURSOR_GRACE_SECONDS":  5,
}

// Load reads configuration from the environment, optionally layered over a
// YAML file named by CONFIG_FILE. Keys in the file use the env names.
func Load() Config {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if f := v.GetString("CONFIG_FILE"); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("config file not loaded")
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	secs := func(k string) time.Duration { return time.Duration(v.GetInt(k)) * time.Second }
	c := Config{
		AppEnv:      v.GetString("APP_ENV"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		MetricsAddr: v.GetString("METRICS_ADDR"),
		MySQLDSN:    v.GetString("MYSQL_DSN"),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		RedisPass:   v.GetString("REDIS_PASSWORD"),
		RedisDB:     v.GetInt("REDIS_DB"),
		NewbookBase: v.GetString("NEWBOOK_BASE_URL"),
		NewbookKey:  v.GetString("NEWBOOK_API_KEY"),
		NewbookRPS:  v.GetInt("NEWBOOK_RPS"),

		PollingEnabled:    v.GetBool("POLLING_ENABLED"),
		PollInterval:      secs("POLL_INTERVAL_SECONDS"),
		BufferTTL:         secs("BUFFER_TTL_SECONDS"),
		DedupWindow:       secs("DEDUP_WINDOW_SECONDS"),
		BootstrapLookback: secs("BOOTSTRAP_LOOKBACK_SECONDS"),
		SweepInterval:     secs("SWEEP_INTERVAL_SECONDS"),
		PollWorkers:       v.GetInt("POLL_WORKERS"),
		CycleLease:        secs("CYCLE_LEASE_SECONDS"),
		DirectoryCacheTTL: secs("DIRECTORY_CACHE_SECONDS"),
		FeedCursorGrace:   secs("FEED_CURSOR_GRACE_SECONDS"),
	}
	if c.NewbookKey == "" {
		log.Warn().Msg("NEWBOOK_API_KEY is empty")
	}
	// consumers that poll less often than the TTL silently miss changes
	if c.BufferTTL < 2*c.BootstrapLookback {
		log.Warn().
			Dur("buffer_ttl", c.BufferTTL).
			Dur("lookback", c.BootstrapLookback).
			Msg("BUFFER_TTL_SECONDS is shorter than twice the consumer lookback")
	}
	return c
}
