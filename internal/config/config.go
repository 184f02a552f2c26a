package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultJWTSecret = "default-secret-key-change-in-production"

const (
	ImageBackendLocal = "local"
	ImageBackendGCS   = "gcs"
)

type Config struct {
	Port  string
	DBUrl string

	JWTSecret string
	TokenTTL  time.Duration

	// AllowDefaultJWTSecret permits running with DefaultJWTSecret in development.
	AllowDefaultJWTSecret bool

	LogLevel  string
	LogPretty bool

	ImageBackend     string
	UploadDir        string
	MaxUploadBytes   int64
	GCSBucket        string
	GCSPublicBaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string

	KafkaBrokers []string
	KafkaTopic   string

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, using environment and defaults")
	}

	return Config{
		Port:  getEnv("PORT", "5000"),
		DBUrl: os.Getenv("DB_URL"),

		JWTSecret: getEnv("JWT_SECRET", DefaultJWTSecret),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 7*24*time.Hour),

		AllowDefaultJWTSecret: getEnvBool("ALLOW_DEFAULT_JWT_SECRET", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", true),

		ImageBackend:     strings.ToLower(getEnv("IMAGE_BACKEND", ImageBackendLocal)),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 2*1024*1024),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GCSPublicBaseURL: getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "marketplace.orders"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: int(getEnvInt64("RATE_LIMIT_BURST", 20)),
	}
}

var ErrDefaultJWTSecret = errors.New("JWT_SECRET is not set; set it or ALLOW_DEFAULT_JWT_SECRET=true for development")

// Validate rejects settings the server must not start with.
func (c Config) Validate() error {
	if c.JWTSecret == DefaultJWTSecret && !c.AllowDefaultJWTSecret {
		return ErrDefaultJWTSecret
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
