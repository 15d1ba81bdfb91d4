package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Booking  BookingConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	MaxRetries   int
	// RunMigrations applies the embedded SQL migrations on startup (postgres only).
	RunMigrations bool
	Debug         bool
}

// RedisConfig enables the distributed per-event lock when Enabled.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
	LockWait time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingCreated   string
	BookingConfirmed string
	BookingCancelled string
	PaymentRefunded  string
}

type BookingConfig struct {
	CodePrefix  string
	CodeLength  int
	CodeRetries int
	PendingTTL  time.Duration
	SweepEvery  time.Duration
	MaxQuantity int
	QRSecretKey string
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

type LogConfig struct {
	Dir   string
	Level string
	Color bool
}

// LoadEnvFile loads a .env file if one exists. A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "reservation"),
			Password:      getEnv("DB_PASSWORD", "reservation"),
			Database:      getEnv("DB_NAME", "reservation"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			SQLitePath:    getEnv("DB_SQLITE_PATH", "file:reservation.db?cache=shared"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MaxRetries:    getEnvInt("DB_CONNECT_RETRIES", 5),
			RunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),
			Debug:         getEnvBool("DB_DEBUG", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("EVENT_LOCK_TTL", 10*time.Second),
			LockWait: getEnvDuration("EVENT_LOCK_WAIT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				BookingCreated:   getEnv("KAFKA_TOPIC_BOOKING_CREATED", "booking.created"),
				BookingConfirmed: getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "booking.confirmed"),
				BookingCancelled: getEnv("KAFKA_TOPIC_BOOKING_CANCELLED", "booking.cancelled"),
				PaymentRefunded:  getEnv("KAFKA_TOPIC_PAYMENT_REFUNDED", "payment.refunded"),
			},
		},
		Booking: BookingConfig{
			CodePrefix:  getEnv("BOOKING_CODE_PREFIX", "TKT-"),
			CodeLength:  getEnvInt("BOOKING_CODE_LENGTH", 6),
			CodeRetries: getEnvInt("BOOKING_CODE_RETRIES", 5),
			PendingTTL:  getEnvDuration("BOOKING_PENDING_TTL", 0),
			SweepEvery:  getEnvDuration("BOOKING_SWEEP_INTERVAL", time.Minute),
			MaxQuantity: getEnvInt("BOOKING_MAX_QUANTITY", 10),
			QRSecretKey: getEnv("QR_SECRET_KEY", "change-me-qr-secret"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			TokenTTL:   getEnvDuration("JWT_TTL", 24*time.Hour),
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
			Color: getEnvBool("LOG_COLOR", true),
		},
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Booking.CodeLength < 5 || c.Booking.CodeLength > 6 {
		return fmt.Errorf("config: BOOKING_CODE_LENGTH must be 5 or 6, got %d", c.Booking.CodeLength)
	}
	if c.Booking.CodeRetries < 1 {
		return fmt.Errorf("config: BOOKING_CODE_RETRIES must be positive")
	}
	if c.Booking.MaxQuantity < 1 {
		return fmt.Errorf("config: BOOKING_MAX_QUANTITY must be positive")
	}
	if c.Booking.PendingTTL < 0 {
		return fmt.Errorf("config: BOOKING_PENDING_TTL cannot be negative")
	}
	if c.Auth.JWTSecret == "" {
		if c.Env != "development" {
			return fmt.Errorf("config: JWT_SECRET is required outside development")
		}
		c.Auth.JWTSecret = "development-secret"
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: KAFKA_BROKERS is empty")
	}
	return nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
