package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LocalSentinelURL selects the emulator even though it looks like a real URL.
const LocalSentinelURL = "https://mock.supabase.co"

var placeholderMarkers = []string{"placeholder", "your-project", "your_supabase"}

// Session store kinds.
const (
	SessionStoreSQLite = "sqlite"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Config centralises environment variables and runtime parameters.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	HTTPBasePath     string
	MetricsNamespace string

	SupabaseURL     string
	SupabaseAnonKey string
	DatabaseURL     string
	SupabaseSchema  string
	AuthTimeout     time.Duration

	SessionStore  string
	SessionDBPath string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	MockLatency    bool
	MockSeed       uint64
	MockClientes   int
	MockVendedores int

	SignInRatePerMinute int
}

// Load reads the environment and validates typed values.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:           getEnv("APP_ENV", "local"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		HTTPBasePath:     getEnv("HTTP_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "tiempos"),

		SupabaseURL:     strings.TrimSpace(getEnv("SUPABASE_URL", "")),
		SupabaseAnonKey: getEnv("SUPABASE_ANON_KEY", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SupabaseSchema:  getEnv("SUPABASE_SCHEMA", "public"),

		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", SessionStoreSQLite)),
		SessionDBPath: getEnv("SESSION_DB_PATH", "data/session.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	var err error
	if cfg.AuthTimeout, err = getDuration("AUTH_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.RedisTLS, err = getBool("REDIS_TLS", false); err != nil {
		return Config{}, err
	}
	if cfg.MockLatency, err = getBool("MOCK_LATENCY", true); err != nil {
		return Config{}, err
	}
	seed, err := getInt("MOCK_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	if seed < 0 {
		return Config{}, fmt.Errorf("MOCK_SEED must not be negative")
	}
	cfg.MockSeed = uint64(seed)
	if cfg.MockClientes, err = getInt("MOCK_CLIENTES", 24); err != nil {
		return Config{}, err
	}
	if cfg.MockVendedores, err = getInt("MOCK_VENDEDORES", 6); err != nil {
		return Config{}, err
	}
	if cfg.MockClientes < 0 || cfg.MockVendedores < 0 {
		return Config{}, fmt.Errorf("MOCK_CLIENTES and MOCK_VENDEDORES must not be negative")
	}
	if cfg.SignInRatePerMinute, err = getInt("SIGNIN_RATE_PER_MINUTE", 30); err != nil {
		return Config{}, err
	}

	switch cfg.SessionStore {
	case SessionStoreSQLite, SessionStoreRedis, SessionStoreMemory:
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be one of sqlite, redis, memory (got %q)", cfg.SessionStore)
	}
	if !cfg.UseEmulator() && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required when SUPABASE_URL points to a live backend")
	}
	return cfg, nil
}

// UseEmulator reports whether the in-memory emulator replaces the real
// backend: the URL is absent, placeholder-valued, or the local sentinel.
func (c Config) UseEmulator() bool {
	return EmulatorURL(c.SupabaseURL)
}

// EmulatorURL applies the activation rule to a raw endpoint value.
func EmulatorURL(raw string) bool {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if u == "" || strings.EqualFold(u, LocalSentinelURL) {
		return true
	}
	lower := strings.ToLower(u)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}
