package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBbolt  = "bbolt"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Store  string
	DBFile string
	Origin string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	APIAddr   string
	AdminAddr string

	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string
	TokenExpiry       time.Duration

	ResyncInterval    time.Duration
	AutoReplyInterval time.Duration
	TypingInterval    time.Duration
	WelcomeDelay      time.Duration
	AutoReplyAfter    time.Duration
	TypingWindow      time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Store:             getEnv("HARMONIKA_STORE", StoreBbolt),
		DBFile:            getEnv("HARMONIKA_DB", "harmonika.db"),
		Origin:            getEnv("HARMONIKA_ORIGIN", "harmonika"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		APIAddr:           getEnv("API_ADDR", ":8080"),
		AdminAddr:         getEnv("ADMIN_ADDR", "localhost:8081"),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "admin123"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"TOKEN_EXPIRY", "24h", &cfg.TokenExpiry},
		{"RESYNC_INTERVAL", "2s", &cfg.ResyncInterval},
		{"AUTOREPLY_INTERVAL", "10s", &cfg.AutoReplyInterval},
		{"TYPING_INTERVAL", "500ms", &cfg.TypingInterval},
		{"WELCOME_DELAY", "500ms", &cfg.WelcomeDelay},
		{"AUTOREPLY_AFTER", "60s", &cfg.AutoReplyAfter},
		{"TYPING_WINDOW", "2s", &cfg.TypingWindow},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreBbolt, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("HARMONIKA_STORE must be one of %s, %s, %s", StoreBbolt, StoreRedis, StoreMemory)
	}

	if c.Store == StoreBbolt && c.DBFile == "" {
		return errors.New("HARMONIKA_DB is required for the bbolt store")
	}

	if c.AdminUser == "" {
		return errors.New("ADMIN_USER is required")
	}

	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		return errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required")
	}

	for name, d := range map[string]time.Duration{
		"TOKEN_EXPIRY":       c.TokenExpiry,
		"RESYNC_INTERVAL":    c.ResyncInterval,
		"AUTOREPLY_INTERVAL": c.AutoReplyInterval,
		"TYPING_INTERVAL":    c.TypingInterval,
		"WELCOME_DELAY":      c.WelcomeDelay,
		"AUTOREPLY_AFTER":    c.AutoReplyAfter,
		"TYPING_WINDOW":      c.TypingWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
