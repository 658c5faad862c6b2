package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	BaseURL   string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	Portal     PortalConfig
	Dashboard  DashboardConfig
	Materials  MaterialsConfig
	Mail       MailConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig tunes the session resolver and ledger.
type AttendanceConfig struct {
	Timezone           string
	HolidayCheckOnScan bool
	DefaultTotalWeeks  int
}

// PortalConfig governs the student magic-link portal.
type PortalConfig struct {
	TokenSecret         string
	TokenTTL            time.Duration
	SessionTTL          time.Duration
	AllowedEmailDomains []string
}

// DashboardConfig governs scoring cache behaviour.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// MaterialsConfig controls course material storage.
type MaterialsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
}

// MailConfig configures the async magic-link mail dispatcher.
type MailConfig struct {
	FromAddress       string
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.BaseURL = v.GetString("BASE_URL")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		Timezone:           v.GetString("ATTENDANCE_TIMEZONE"),
		HolidayCheckOnScan: v.GetBool("ATTENDANCE_HOLIDAY_CHECK_ON_SCAN"),
		DefaultTotalWeeks:  v.GetInt("ATTENDANCE_DEFAULT_TOTAL_WEEKS"),
	}

	cfg.Portal = PortalConfig{
		TokenSecret:         v.GetString("PORTAL_TOKEN_SECRET"),
		TokenTTL:            parseDuration(v.GetString("PORTAL_TOKEN_TTL"), 15*time.Minute),
		SessionTTL:          parseDuration(v.GetString("PORTAL_SESSION_TTL"), 12*time.Hour),
		AllowedEmailDomains: splitAndTrim(v.GetString("PORTAL_ALLOWED_EMAIL_DOMAINS")),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	maxMaterialSize := v.GetInt64("MATERIALS_MAX_FILE_SIZE")
	if maxMaterialSize <= 0 {
		maxMaterialSize = 10 * 1024 * 1024
	}
	cfg.Materials = MaterialsConfig{
		StorageDir:       v.GetString("MATERIALS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("MATERIALS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("MATERIALS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxMaterialSize,
	}

	cfg.Mail = MailConfig{
		FromAddress:       v.GetString("MAIL_FROM_ADDRESS"),
		WorkerConcurrency: v.GetInt("MAIL_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("MAIL_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "qr_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "qr-attendance-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_TIMEZONE", "Europe/Istanbul")
	v.SetDefault("ATTENDANCE_HOLIDAY_CHECK_ON_SCAN", false)
	v.SetDefault("ATTENDANCE_DEFAULT_TOTAL_WEEKS", 14)

	v.SetDefault("PORTAL_TOKEN_SECRET", "dev_portal_secret")
	v.SetDefault("PORTAL_TOKEN_TTL", "15m")
	v.SetDefault("PORTAL_SESSION_TTL", "12h")
	v.SetDefault("PORTAL_ALLOWED_EMAIL_DOMAINS", ".edu.tr")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("MATERIALS_STORAGE_DIR", "./materials")
	v.SetDefault("MATERIALS_SIGNED_URL_SECRET", "dev_materials_secret")
	v.SetDefault("MATERIALS_SIGNED_URL_TTL", "30m")
	v.SetDefault("MATERIALS_MAX_FILE_SIZE", 10*1024*1024)

	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@localhost")
	v.SetDefault("MAIL_WORKER_CONCURRENCY", 1)
	v.SetDefault("MAIL_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
