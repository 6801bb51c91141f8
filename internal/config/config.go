package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// ErrMissingReputationKey is reported by Validate when no VirusTotal key is set.
// The service still starts; reputation fields degrade to an error shape.
var ErrMissingReputationKey = errors.New("VIRUSTOTAL_API_KEY is empty (reputation lookups disabled)")

type Config struct {
	Env         string
	ServiceName string
	Addr        string // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir      string
	LogLevel    string

	AllowedOrigins []string // empty means allow all
	APIKeys        []string // empty means no auth
	PublicRPM      int
	PublicBurst    int
	MaxBatchSize   int

	UserAgent   string
	HTTPTimeout time.Duration
	TLSTimeout  time.Duration
	DNSTimeout  time.Duration

	VirusTotalAPIKey   string
	VirusTotalBaseURL  string
	ReputationTimeout  time.Duration
	ReputationRPM      int // 0 disables outbound pacing
	MemcachedServers   []string
	ReputationCacheTTL time.Duration

	SlackWebhook string

	TelemetryEnabled      bool
	TelemetryCollectorURL string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "local")
	v.SetDefault("SERVICE_NAME", "urlchecker")
	v.SetDefault("API_ADDR", "127.0.0.1:8080")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PUBLIC_RPM", 120)
	v.SetDefault("PUBLIC_BURST", 20)
	v.SetDefault("MAX_BATCH_SIZE", 50)
	v.SetDefault("USER_AGENT", "URL-Checker/1.0")
	v.SetDefault("HTTP_TIMEOUT_MS", 10000)
	v.SetDefault("TLS_TIMEOUT_MS", 5000)
	v.SetDefault("DNS_TIMEOUT_MS", 5000)
	v.SetDefault("VIRUSTOTAL_BASE_URL", "https://www.virustotal.com")
	v.SetDefault("REPUTATION_TIMEOUT_MS", 15000)
	v.SetDefault("REPUTATION_RPM", 0)
	v.SetDefault("REPUTATION_CACHE_TTL", "1h")
	v.SetDefault("TELEMETRY_ENABLED", false)
}

// Load reads configuration from the environment, optionally overlaid on a
// config.yaml in the working directory. Environment variables win.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v), nil
}

// FromEnv is Load without the config file; bad files are not possible here.
func FromEnv() Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Env:         v.GetString("ENV"),
		ServiceName: v.GetString("SERVICE_NAME"),
		Addr:        v.GetString("API_ADDR"),
		LogDir:      v.GetString("LOG_DIR"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		APIKeys:        splitList(v.GetString("API_KEYS")),
		PublicRPM:      v.GetInt("PUBLIC_RPM"),
		PublicBurst:    v.GetInt("PUBLIC_BURST"),
		MaxBatchSize:   v.GetInt("MAX_BATCH_SIZE"),

		UserAgent:   v.GetString("USER_AGENT"),
		HTTPTimeout: millis(v, "HTTP_TIMEOUT_MS"),
		TLSTimeout:  millis(v, "TLS_TIMEOUT_MS"),
		DNSTimeout:  millis(v, "DNS_TIMEOUT_MS"),

		VirusTotalAPIKey:   strings.TrimSpace(v.GetString("VIRUSTOTAL_API_KEY")),
		VirusTotalBaseURL:  strings.TrimRight(v.GetString("VIRUSTOTAL_BASE_URL"), "/"),
		ReputationTimeout:  millis(v, "REPUTATION_TIMEOUT_MS"),
		ReputationRPM:      v.GetInt("REPUTATION_RPM"),
		MemcachedServers:   splitList(v.GetString("MEMCACHED_SERVERS")),
		ReputationCacheTTL: v.GetDuration("REPUTATION_CACHE_TTL"),

		SlackWebhook: v.GetString("SLACK_WEBHOOK_URL"),

		TelemetryEnabled:      v.GetBool("TELEMETRY_ENABLED"),
		TelemetryCollectorURL: v.GetString("TELEMETRY_COLLECTOR_URL"),
	}
}

// Validate reports every problem at once. ErrMissingReputationKey is among
// them when the key is unset; callers may treat it as a warning.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("API_ADDR is empty"))
	}
	if c.MaxBatchSize < 1 {
		err = multierr.Append(err, fmt.Errorf("MAX_BATCH_SIZE must be >= 1, got %d", c.MaxBatchSize))
	}
	for name, d := range map[string]time.Duration{
		"HTTP_TIMEOUT_MS":       c.HTTPTimeout,
		"TLS_TIMEOUT_MS":        c.TLSTimeout,
		"DNS_TIMEOUT_MS":        c.DNSTimeout,
		"REPUTATION_TIMEOUT_MS": c.ReputationTimeout,
	} {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be > 0", name))
		}
	}
	if c.ReputationRPM < 0 {
		err = multierr.Append(err, errors.New("REPUTATION_RPM must be >= 0"))
	}
	if c.TelemetryEnabled && c.TelemetryCollectorURL == "" {
		err = multierr.Append(err, errors.New("TELEMETRY_ENABLED is set but TELEMETRY_COLLECTOR_URL is empty"))
	}
	if c.VirusTotalAPIKey == "" {
		err = multierr.Append(err, ErrMissingReputationKey)
	}
	return err
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}

// splitList parses "a, b,c" into [a b c], dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
