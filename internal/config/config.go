// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notifier kinds
const (
	NotifierLog   = "log"
	NotifierHTTP  = "http"
	NotifierKafka = "kafka"
	NotifierAMQP  = "amqp"
)

// Config holds checkout-service settings.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	SessionTTL     time.Duration
	Notifier       string
	MailServiceURL string
	KafkaBrokers   string
	KafkaTopic     string
	AMQPURL        string
	AMQPExchange   string
	NotifyTimeout  time.Duration
	SeedCatalog    bool
}

// Load reads the environment, falling back to defaults for unset values.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		SessionTTL:     getDuration("SESSION_TTL", 30*time.Minute),
		Notifier:       strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		MailServiceURL: getEnv("MAIL_SERVICE_URL", "http://localhost:8083"),
		KafkaBrokers:   getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "checkout.events"),
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "checkout"),
		NotifyTimeout:  getDuration("NOTIFY_TIMEOUT", 3*time.Second),
		SeedCatalog:    getBool("SEED_CATALOG", true),
	}

	switch cfg.Notifier {
	case NotifierLog, NotifierHTTP:
	case NotifierKafka:
		if cfg.KafkaBrokers == "" {
			return cfg, fmt.Errorf("NOTIFIER=kafka requires KAFKA_BROKERS")
		}
	case NotifierAMQP:
		if cfg.AMQPURL == "" {
			return cfg, fmt.Errorf("NOTIFIER=amqp requires AMQP_URL")
		}
	default:
		return cfg, fmt.Errorf("unknown NOTIFIER %q", cfg.Notifier)
	}

	return cfg, nil
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.WithFields(log.Fields{
			"key":     key,
			"value":   value,
			"default": fallback.String(),
		}).Warn("Invalid duration, using default")
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.WithFields(log.Fields{
			"key":   key,
			"value": value,
		}).Warn("Invalid boolean, using default")
		return fallback
	}
	return b
}
