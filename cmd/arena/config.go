package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the arena server configuration. Values come from the optional
// YAML file first; ARENA_* environment variables override it.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Suggest struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"suggest"`
	Engine struct {
		ResolveDelay  time.Duration `yaml:"resolve_delay"`
		Retention     time.Duration `yaml:"retention"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"engine"`
	Rewards struct {
		Subject string `yaml:"subject"`
	} `yaml:"rewards"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Bucket = getEnv("NATS_BUCKET", c.NATS.Bucket)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Suggest.BaseURL = getEnv("SUGGEST_URL", c.Suggest.BaseURL)
	c.Rewards.Subject = getEnv("REWARDS_SUBJECT", c.Rewards.Subject)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Bucket == "" {
		c.NATS.Bucket = "ARENA_SESSIONS"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Suggest.BaseURL == "" {
		c.Suggest.BaseURL = "http://localhost:9090"
	}
	if c.Suggest.Timeout == 0 {
		c.Suggest.Timeout = 5 * time.Second
	}
	if c.Engine.ResolveDelay == 0 {
		c.Engine.ResolveDelay = 3 * time.Second
	}
	if c.Engine.Retention == 0 {
		c.Engine.Retention = 24 * time.Hour
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = 10 * time.Minute
	}
	if c.Rewards.Subject == "" {
		c.Rewards.Subject = "arena.rewards.grant"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
