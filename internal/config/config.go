package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// Config holds all configuration for the bridge service.
type Config struct {
	DataDir         string
	BindAddress     string
	Port            int
	AdminKey        string
	NotificationURL string // public webhook URL registered with Square; part of the signed payload
	Timezone        *time.Location
	RedisAddr       string // optional; enables the shared webhook dedup store
	EnvFile         string
	PublicMetrics   bool
	TrustedProxies  []netip.Prefix // peers whose X-Forwarded-For is honoured
	LogLevel        string
	LogFormat       string

	// Processor holds gateway credentials. It is reloaded in place when EnvFile changes.
	Processor *Processor
}

// DatabasePath returns the path of the SQLite database holding CRM records and settings.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "paybridge.db")
}

// LoadConfig loads configuration from environment variables.
// The env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	envFile := envOrDefault("PAYBRIDGE_ENV_FILE", defaultEnvFile)
	// Best-effort .env loading (not required)
	_ = godotenv.Load(envFile)

	port, err := envOrDefaultInt("PAYBRIDGE_PORT", 8080)
	if err != nil {
		return nil, err
	}
	publicMetrics, err := envOrDefaultBool("PAYBRIDGE_PUBLIC_METRICS", false)
	if err != nil {
		return nil, err
	}

	tzName := envOrDefault("PAYBRIDGE_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("PAYBRIDGE_TIMEZONE must be a valid IANA zone: %w", err)
	}

	trustedProxies, err := parseTrustedProxies(os.Getenv("PAYBRIDGE_TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}

	processor, err := NewProcessor(environMap())
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         envOrDefault("PAYBRIDGE_DATA_DIR", "/data"),
		BindAddress:     envOrDefault("PAYBRIDGE_BIND_ADDRESS", "0.0.0.0"),
		Port:            port,
		AdminKey:        strings.TrimSpace(os.Getenv("PAYBRIDGE_ADMIN_KEY")),
		NotificationURL: strings.TrimSpace(os.Getenv("PAYBRIDGE_NOTIFICATION_URL")),
		Timezone:        loc,
		RedisAddr:       strings.TrimSpace(os.Getenv("PAYBRIDGE_REDIS_ADDR")),
		EnvFile:         envFile,
		PublicMetrics:   publicMetrics,
		TrustedProxies:  trustedProxies,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "auto"),
		Processor:       processor,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.AdminKey == "" {
		missing = append(missing, "PAYBRIDGE_ADMIN_KEY")
	}
	if c.NotificationURL == "" {
		missing = append(missing, "PAYBRIDGE_NOTIFICATION_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PAYBRIDGE_PORT must be between 1 and 65535, got %d", c.Port)
	}

	parsed, err := url.Parse(c.NotificationURL)
	if err != nil {
		return fmt.Errorf("PAYBRIDGE_NOTIFICATION_URL must be a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("PAYBRIDGE_NOTIFICATION_URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("PAYBRIDGE_NOTIFICATION_URL must include a host")
	}
	return nil
}

func environMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}

// parseTrustedProxies reads a comma-separated list of IPs or CIDR prefixes.
func parseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			prefix, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("PAYBRIDGE_TRUSTED_PROXIES: invalid prefix %q: %w", part, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("PAYBRIDGE_TRUSTED_PROXIES: invalid address %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
