package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderCloudinary = "cloudinary"
	ProviderS3         = "s3"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Session  SessionConfig
	Upload   UploadConfig
	Event    EventConfig
	LogLevel slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode,
	)
}

type SessionConfig struct {
	// TTL is how long persisted slots outlive their last write.
	TTL time.Duration
	// IdleTTL is how long an untouched machine stays in memory.
	IdleTTL time.Duration
}

type UploadConfig struct {
	Provider   string
	MaxBytes   int64
	RateLimit  int
	Cloudinary CloudinaryConfig
	S3         S3Config
}

// CloudinaryConfig may be incomplete; the gateway reports missing keys on
// first use.
type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	APIBase      string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type EventConfig struct {
	Name     string
	Location string
	Date     string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: stringEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	backend := strings.ToLower(stringEnv("STORAGE_BACKEND", BackendMemory))
	switch backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("%s: invalid STORAGE_BACKEND %q", op, backend)
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
	}

	if backend == BackendPostgres {
		for name, v := range map[string]string{
			"POSTGRES_USER":     postgresCfg.User,
			"POSTGRES_PASSWORD": postgresCfg.Password,
			"POSTGRES_DB":       postgresCfg.Name,
		} {
			if v == "" {
				return nil, fmt.Errorf("%s: missing %s", op, name)
			}
		}
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	if backend == BackendRedis && redisCfg.Addr == "" {
		redisCfg.Addr = "localhost:6379"
	}

	sessionTTL, err := durationEnv("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idleTTL, err := durationEnv("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	provider := strings.ToLower(stringEnv("UPLOAD_PROVIDER", ProviderCloudinary))
	switch provider {
	case ProviderCloudinary, ProviderS3:
	default:
		return nil, fmt.Errorf("%s: invalid UPLOAD_PROVIDER %q", op, provider)
	}

	maxBytes, err := intEnv("MAX_PHOTO_BYTES", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateLimit, err := intEnv("UPLOAD_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uploadCfg := UploadConfig{
		Provider:  provider,
		MaxBytes:  int64(maxBytes),
		RateLimit: rateLimit,
		Cloudinary: CloudinaryConfig{
			CloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
			UploadPreset: os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
			APIBase:      os.Getenv("CLOUDINARY_API_BASE"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          stringEnv("S3_REGION", "auto"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		},
	}

	eventCfg := EventConfig{
		Name:     stringEnv("EVENT_NAME", `Techember Fest "25`),
		Location: stringEnv("EVENT_LOCATION", "04 Rumens road, Ikoyi, Lagos"),
		Date:     stringEnv("EVENT_DATE", "March 15, 2025 | 7:00 PM"),
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(stringEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Storage:  StorageConfig{Backend: backend},
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Session:  SessionConfig{TTL: sessionTTL, IdleTTL: idleTTL},
		Upload:   uploadCfg,
		Event:    eventCfg,
		LogLevel: level,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
