package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env          string
	LogLevel     string
	HTTP         HTTPConfig
	Identity     IdentityConfig
	Cookies      CookieConfig
	DatabaseURL  string
	DocumentsDir string
	AuditLogFile string
}

type HTTPConfig struct {
	Addr            string
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// IdentityConfig is the trust root for the remote identity service. It is
// read once at startup and treated as read-only afterwards.
type IdentityConfig struct {
	URL           string
	PublicKey     string
	Timeout       time.Duration
	RefreshMargin time.Duration
	OAuthProvider string
}

type CookieConfig struct {
	Secure bool
	Domain string
}

func (c Config) Production() bool {
	return c.Env == EnvProduction
}

func Load() (Config, error) {
	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg := Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			PublicURL:       strings.TrimRight(getEnv("PUBLIC_URL", ""), "/"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		Identity: IdentityConfig{
			URL:           strings.TrimRight(getEnv("IDENTITY_URL", ""), "/"),
			PublicKey:     getEnv("IDENTITY_PUBLIC_KEY", ""),
			Timeout:       time.Duration(getEnvInt("IDENTITY_TIMEOUT_SEC", 10)) * time.Second,
			RefreshMargin: time.Duration(getEnvInt("IDENTITY_REFRESH_MARGIN_SEC", 60)) * time.Second,
			OAuthProvider: getEnv("IDENTITY_OAUTH_PROVIDER", "google"),
		},
		Cookies: CookieConfig{
			Secure: getEnvBool("COOKIE_SECURE", env == EnvProduction),
			Domain: getEnv("COOKIE_DOMAIN", ""),
		},
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DocumentsDir: getEnv("DOCUMENTS_DIR", "./assets"),
		AuditLogFile: getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
	}

	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return Config{}, fmt.Errorf("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Identity.URL == "" {
		return Config{}, fmt.Errorf("IDENTITY_URL must not be empty")
	}
	if u, err := url.Parse(cfg.Identity.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("IDENTITY_URL must be an absolute URL")
	}
	if cfg.Identity.PublicKey == "" {
		return Config{}, fmt.Errorf("IDENTITY_PUBLIC_KEY must not be empty")
	}
	if cfg.Identity.Timeout <= 0 {
		return Config{}, fmt.Errorf("IDENTITY_TIMEOUT_SEC must be > 0")
	}
	if cfg.Identity.RefreshMargin < 0 {
		return Config{}, fmt.Errorf("IDENTITY_REFRESH_MARGIN_SEC must be >= 0")
	}
	if cfg.DocumentsDir == "" {
		return Config{}, fmt.Errorf("DOCUMENTS_DIR must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
