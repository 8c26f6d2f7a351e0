package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Supabase SupabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Snap     SnapConfig
	Port     string
	GinMode  string
	LogMode  string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	// LocalMediaDir and PublicURL serve media from disk when URL is empty.
	LocalMediaDir string
	PublicURL     string
}

type JWTConfig struct {
	Secret string
	Expiry string
}

type RedisConfig struct {
	Addr      string
	PushQueue string
}

type SnapConfig struct {
	DefaultTTL        time.Duration
	MaxTTL            time.Duration
	ReapInterval      time.Duration
	ReapGrace         time.Duration
	CredentialTTL     time.Duration
	MaxRecipients     int
	FanoutConcurrency int
}

func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "dmcore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Supabase: SupabaseConfig{
			URL:            getEnv("SUPABASE_URL", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:         getEnv("SUPABASE_BUCKET", "snap-media"),
			LocalMediaDir:  getEnv("MEDIA_LOCAL_DIR", "./media"),
			PublicURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
			Expiry: getEnv("JWT_EXPIRY", "24h"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			PushQueue: getEnv("REDIS_PUSH_QUEUE", "push:outbox"),
		},
		Snap: SnapConfig{
			DefaultTTL:        getDuration("SNAP_DEFAULT_TTL", 24*time.Hour),
			MaxTTL:            getDuration("SNAP_MAX_TTL", 7*24*time.Hour),
			ReapInterval:      getDuration("SNAP_REAP_INTERVAL", time.Minute),
			ReapGrace:         getDuration("SNAP_REAP_GRACE", 24*time.Hour),
			CredentialTTL:     getDuration("MEDIA_CREDENTIAL_TTL", time.Minute),
			MaxRecipients:     getInt("SNAP_MAX_RECIPIENTS", 50),
			FanoutConcurrency: getInt("SNAP_FANOUT_CONCURRENCY", 4),
		},
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// JWTExpiry parses JWT_EXPIRY, falling back to 24h.
func (c *Config) JWTExpiry() time.Duration {
	d, err := time.ParseDuration(c.JWT.Expiry)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return c.buildDatabaseURL()
}

func (c *Config) buildDatabaseURL() string {
	var sb strings.Builder

	sb.WriteString("postgres://")
	sb.WriteString(c.Database.User)
	if c.Database.Password != "" {
		sb.WriteString(":")
		sb.WriteString(c.Database.Password)
	}
	sb.WriteString("@")
	sb.WriteString(c.Database.Host)
	sb.WriteString(":")
	sb.WriteString(c.Database.Port)
	sb.WriteString("/")
	sb.WriteString(c.Database.DBName)

	if c.Database.SSLMode != "" {
		sb.WriteString("?sslmode=")
		sb.WriteString(c.Database.SSLMode)
	}

	return sb.String()
}

func (c *Config) GetCORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}
