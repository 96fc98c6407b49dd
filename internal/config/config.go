package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"QUIZ_SERVER_PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
		Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
		TTL      string `yaml:"ttl" env:"QUIZ_REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
	} `yaml:"postgres"`
	Quiz     QuizConfig     `yaml:"quiz"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type QuizConfig struct {
	// ID selects the question bank; empty runs without one.
	ID  string `yaml:"id" env:"QUIZ_ID"`
	TTL string `yaml:"ttl" env:"QUIZ_TTL"`
	// Store is "memory", "redis" or "postgres"; empty picks redis, then postgres, then memory.
	Store string `yaml:"store" env:"QUIZ_STORE"`
	// QuestionsFile is a YAML list of quizzes used when Postgres is not configured.
	QuestionsFile string `yaml:"questions_file" env:"QUIZ_QUESTIONS_FILE"`
	TopN          int    `yaml:"top_n" env:"QUIZ_TOP_N"`
	// Matching is "exact" or "fold".
	Matching string `yaml:"matching" env:"QUIZ_MATCHING"`
	JoinURL  string `yaml:"join_url" env:"QUIZ_JOIN_URL"`
}

type TelegramConfig struct {
	Token       string  `yaml:"token" env:"QUIZ_TELEGRAM_TOKEN"`
	Operators   []int64 `yaml:"operators" env:"QUIZ_TELEGRAM_OPERATORS" envSeparator:","`
	PollTimeout string  `yaml:"poll_timeout" env:"QUIZ_TELEGRAM_POLL_TIMEOUT"`
	Debug       bool    `yaml:"debug" env:"QUIZ_TELEGRAM_DEBUG"`
}

// Load reads YAML config from path, then applies QUIZ_* environment overrides.
// A missing file is not an error when the environment supplies everything.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsOperator reports whether chatID may run operator commands.
func (t TelegramConfig) IsOperator(chatID int64) bool {
	for _, id := range t.Operators {
		if id == chatID {
			return true
		}
	}
	return false
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
