// Package config provides configuration for streamchat.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the streamchat configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Generation backend
	LLMMode           string        `yaml:"llm_mode"`
	LLMBaseURL        string        `yaml:"llm_base_url"`
	LLMAPIKey         string        `yaml:"llm_api_key"`
	LLMModel          string        `yaml:"llm_model"`
	LLMSystemPrompt   string        `yaml:"llm_system_prompt"`
	LLMConnectTimeout time.Duration `yaml:"llm_connect_timeout"`

	// Turns
	TurnTimeout   time.Duration `yaml:"turn_timeout"` // 0 means no timeout
	MaxInputChars int           `yaml:"max_input_chars"`

	// WebSocket settings
	PingInterval   time.Duration `yaml:"ws_ping_interval"`
	WriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	ReadTimeout    time.Duration `yaml:"ws_read_timeout"`
	MaxMessageSize int64         `yaml:"ws_max_message_size"`
	SendBuffer     int           `yaml:"ws_send_buffer"`
	TurnQueue      int           `yaml:"ws_turn_queue"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:          8080,
		DatabaseURL:       "file:streamchat.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1",
		LLMBaseURL:        "http://localhost:4000",
		LLMModel:          "glm-4.5-flash",
		LLMConnectTimeout: 30 * time.Second,
		MaxInputChars:     32000,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		MaxMessageSize:    65536,
		SendBuffer:        256,
		TurnQueue:         16,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load builds the configuration from defaults, then the YAML file at path (if
// path is not empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.LLMMode = getEnv("LLM_MODE", c.LLMMode)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.LLMSystemPrompt = getEnv("LLM_SYSTEM_PROMPT", c.LLMSystemPrompt)
	c.LLMConnectTimeout = getEnvMillis("LLM_CONNECT_TIMEOUT_MS", c.LLMConnectTimeout)
	c.TurnTimeout = getEnvMillis("TURN_TIMEOUT_MS", c.TurnTimeout)
	c.MaxInputChars = getEnvInt("MAX_INPUT_CHARS", c.MaxInputChars)
	c.PingInterval = getEnvMillis("WS_PING_INTERVAL_MS", c.PingInterval)
	c.WriteTimeout = getEnvMillis("WS_WRITE_TIMEOUT_MS", c.WriteTimeout)
	c.ReadTimeout = getEnvMillis("WS_READ_TIMEOUT_MS", c.ReadTimeout)
	c.MaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.MaxMessageSize)))
	c.SendBuffer = getEnvInt("WS_SEND_BUFFER", c.SendBuffer)
	c.TurnQueue = getEnvInt("WS_TURN_QUEUE", c.TurnQueue)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
