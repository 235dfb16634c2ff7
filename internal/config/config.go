package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        string
	DatabaseURL string

	KafkaBrokers string
	KafkaTopic   string

	SMTPAddr string
	SMTPFrom string

	KOTMode           string
	KOTBatchThreshold int

	OverridePIN string
}

func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8082"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "order-status-events"),
		SMTPAddr:          getEnv("SMTP_ADDR", ""),
		SMTPFrom:          getEnv("SMTP_FROM", "no-reply@tablemaster.local"),
		KOTMode:           getEnv("KOT_MODE", "immediate"),
		KOTBatchThreshold: getEnvInt("KOT_BATCH_THRESHOLD", 3),
		OverridePIN:       getEnv("OVERRIDE_PIN", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
