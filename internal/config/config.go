// Package config loads service configuration from the environment. A
// .env file in the working directory is honored when present, matching
// how the services run in local compose setups.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	PostgresURL string

	KafkaBrokers []string
	OrderTopic   string

	RedisAddr string

	JWTSecret string

	// Payment gateway.
	GatewaySecretKey string
	WebhookSecret    string
	CheckoutBaseURL  string
	SuccessURL       string
	CancelURL        string
}

// Load reads configuration from the environment. Only PostgresURL is
// unconditionally required; callers that need Kafka, Redis or the
// payment gateway validate those fields themselves.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		OrderTopic:       getenv("ORDER_EVENTS_TOPIC", "order.events"),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		GatewaySecretKey: os.Getenv("PAYMENT_GATEWAY_SECRET_KEY"),
		WebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CheckoutBaseURL:  getenv("PAYMENT_GATEWAY_URL", "https://api.stripe.com"),
		SuccessURL:       getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/order-success"),
		CancelURL:        getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/order-failed"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL environment variable is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
