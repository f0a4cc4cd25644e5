package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBOpTimeout       time.Duration

	// Session
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	// Password
	PasswordHasher string // "pgcrypto" or "bcrypt"
	BcryptCost     int

	// Rate Limit
	RateLimitAuth    int // サインイン・サインアップ（req/min/IP）
	RateLimitGeneral int // 認証済みAPI（req/min/user）

	// Lockout
	RedisURL         string
	LockoutThreshold int
	LockoutWindow    time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort     string
	BaseURL        string
	RequestTimeout time.Duration

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// PasswordHasher の取り得る値
const (
	HasherPgcrypto = "pgcrypto"
	HasherBcrypt   = "bcrypt"
)

// Load は環境変数からConfigを読み込む。
// CONFIG_FILEが指定されている場合はYAMLファイルの値をデフォルトとして使い、環境変数で上書きする。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = src.getString("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = src.getInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = src.getInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = src.getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.DBOpTimeout = src.getDuration("DB_OP_TIMEOUT", 5*time.Second)
	cfg.SessionTTL = src.getDuration("SESSION_TTL", 7*24*time.Hour)
	cfg.SessionCleanupInterval = src.getDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.PasswordHasher = src.getString("PASSWORD_HASHER", HasherPgcrypto)
	cfg.BcryptCost = src.getInt("BCRYPT_COST", 10)
	cfg.RateLimitAuth = src.getInt("RATE_LIMIT_AUTH", 20)
	cfg.RateLimitGeneral = src.getInt("RATE_LIMIT_GENERAL", 120)
	cfg.RedisURL = src.getString("REDIS_URL", "")
	cfg.LockoutThreshold = src.getInt("LOCKOUT_THRESHOLD", 10)
	cfg.LockoutWindow = src.getDuration("LOCKOUT_WINDOW", 15*time.Minute)
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.BaseURL = src.getString("BASE_URL", "http://localhost:8080")
	cfg.RequestTimeout = src.getDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = src.getString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = src.getString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	switch c.PasswordHasher {
	case HasherPgcrypto, HasherBcrypt:
	default:
		return fmt.Errorf("PASSWORD_HASHER must be %q or %q, got %q", HasherPgcrypto, HasherBcrypt, c.PasswordHasher)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %v", c.SessionTTL)
	}
	return nil
}

// source は環境変数とYAMLファイルの値を解決する。環境変数が優先される。
type source struct {
	file map[string]string
}

// newSource はYAMLファイルを読み込んでsourceを生成する。pathが空の場合は環境変数のみ。
// YAMLのキーは環境変数名の小文字表記（例: database_url）。
func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		s.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return s, nil
}

func (s *source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s *source) getString(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s *source) getInt(key string, defaultVal int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s *source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
