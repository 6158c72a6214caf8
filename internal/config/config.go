package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LogLevel  string          `yaml:"log_level"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	Debug bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	DSN    string `yaml:"dsn"`
}

type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	// EmbeddingDims must match the vector size stored in the database.
	// Changing providers requires a migration and a full /backfill.
	EmbeddingDims  int `yaml:"embedding_dims"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// IntervalMinutes is how often the reminder scan runs.
	IntervalMinutes int `yaml:"interval_minutes"`
	// PaymentGraceDays is how long a stage may sit with an unclosed
	// payment before reports flag it as a payment risk.
	PaymentGraceDays int `yaml:"payment_grace_days"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.overrideFromEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "postgres",
			DSN:    "host=localhost user=postgres password=password dbname=renobot port=5432 sslmode=disable TimeZone=UTC",
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  1536,
			TimeoutSeconds: 60,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			IntervalMinutes:  30,
			PaymentGraceDays: 14,
		},
		LogLevel: "info",
	}
}

func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_CHAT_MODEL"); v != "" {
		c.OpenAI.ChatModel = v
	}
	if v := os.Getenv("OPENAI_EMBEDDING_MODEL"); v != "" {
		c.OpenAI.EmbeddingModel = v
	}
	if v := os.Getenv("OPENAI_EMBEDDING_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.OpenAI.EmbeddingDims = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = def.Database.DSN
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = def.OpenAI.ChatModel
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = def.OpenAI.EmbeddingModel
	}
	if c.OpenAI.EmbeddingDims <= 0 {
		c.OpenAI.EmbeddingDims = def.OpenAI.EmbeddingDims
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = def.OpenAI.TimeoutSeconds
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		c.Scheduler.IntervalMinutes = def.Scheduler.IntervalMinutes
	}
	if c.Scheduler.PaymentGraceDays <= 0 {
		c.Scheduler.PaymentGraceDays = def.Scheduler.PaymentGraceDays
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
