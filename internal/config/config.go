package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultProducerURL = "https://report.taurus.cash/reportclient/producerController/send"
	defaultWithdrawURL = "https://landscape-api.taurus.cash/awclient/landscape/withdraw/withdrawDetail"

	defaultHTTPAddr        = ":8080"
	defaultSyncInterval    = 30 * time.Minute
	defaultUpstreamTimeout = 20 * time.Second
	defaultProducerSettle  = 2 * time.Second
)

// SourceConfig holds the static credentials for one upstream account,
// loaded from SOURCE_A_* / SOURCE_B_* environment variables.
type SourceConfig struct {
	Code      string
	Channel   string
	AID       string
	Token     string
	GAID      string
	UID       string
	Pkg       string
	UserAgent string
}

type Config struct {
	DatabaseURL   string
	TriggerSecret string
	HTTPAddr      string

	ProducerURL     string
	WithdrawURL     string
	UpstreamTimeout time.Duration
	ProducerSettle  time.Duration

	SyncInterval time.Duration
	// ExternalCron disables the built-in interval timer; cycles are then
	// driven entirely by an external scheduler calling the trigger endpoint.
	ExternalCron bool

	Sources [2]SourceConfig
}

var sourcePrefixes = [2]string{"SOURCE_A", "SOURCE_B"}

// Load reads the configuration from the environment once at startup. A
// missing database URL, trigger secret, or source code/token is fatal: the
// process must refuse to start rather than run a half-configured sync.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		TriggerSecret:   os.Getenv("CRON_SECRET"),
		HTTPAddr:        getenv("HTTP_ADDR", defaultHTTPAddr),
		ProducerURL:     getenv("UPSTREAM_PRODUCER_URL", defaultProducerURL),
		WithdrawURL:     getenv("UPSTREAM_WITHDRAW_URL", defaultWithdrawURL),
		UpstreamTimeout: defaultUpstreamTimeout,
		ProducerSettle:  defaultProducerSettle,
		SyncInterval:    defaultSyncInterval,
		ExternalCron:    getenvBool("SYNC_EXTERNAL_CRON"),
	}

	if raw := os.Getenv("SYNC_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("SYNC_INTERVAL_MINUTES: expected a positive integer, got %q", raw)
		}
		cfg.SyncInterval = time.Duration(minutes) * time.Minute
	}

	for i, prefix := range sourcePrefixes {
		cfg.Sources[i] = SourceConfig{
			Code:      os.Getenv(prefix + "_CODE"),
			Channel:   os.Getenv(prefix + "_CHANNEL"),
			AID:       os.Getenv(prefix + "_AID"),
			Token:     os.Getenv(prefix + "_TOKEN"),
			GAID:      os.Getenv(prefix + "_GAID"),
			UID:       os.Getenv(prefix + "_UID"),
			Pkg:       os.Getenv(prefix + "_PKG"),
			UserAgent: os.Getenv(prefix + "_USER_AGENT"),
		}
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.TriggerSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	for i, prefix := range sourcePrefixes {
		if cfg.Sources[i].Code == "" {
			missing = append(missing, prefix+"_CODE")
		}
		if cfg.Sources[i].Token == "" {
			missing = append(missing, prefix+"_TOKEN")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.Sources[0].Code == cfg.Sources[1].Code {
		return nil, fmt.Errorf("source codes must differ, both are %q", cfg.Sources[0].Code)
	}

	return cfg, nil
}

// InitDB opens the Postgres connection.
func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
