// Package config loads termchat configuration and sets up logging.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	APIURL string
	WSURL  string

	// History pagination
	PageSize int

	// HTTP
	HTTPTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Local state (client id file lives here)
	DataDir string
}

// fileConfig is the YAML config file schema. All fields optional;
// env vars take precedence over the file.
type fileConfig struct {
	APIURL      string `yaml:"api_url"`
	WSURL       string `yaml:"ws_url"`
	PageSize    int    `yaml:"page_size"`
	HTTPTimeout string `yaml:"http_timeout"`
	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
	DataDir     string `yaml:"data_dir"`
}

// Load reads configuration from, in increasing precedence: built-in defaults,
// the optional config file, an optional .env file in the working directory,
// and process environment variables. Defaults target a local development
// backend.
func Load() Config {
	// .env is a convenience for development; ignore if absent.
	_ = godotenv.Load()

	file := loadFile(ConfigFilePath())

	cfg := Config{
		APIURL:      getEnv("TERMCHAT_API_URL", fallback(file.APIURL, "http://localhost:8000")),
		WSURL:       getEnv("TERMCHAT_WS_URL", fallback(file.WSURL, "ws://localhost:8000")),
		PageSize:    getEnvInt("TERMCHAT_PAGE_SIZE", fallbackInt(file.PageSize, 20)),
		HTTPTimeout: getEnvDuration("TERMCHAT_HTTP_TIMEOUT", fallbackDuration(file.HTTPTimeout, 30*time.Second)),
		LogFile:     getEnv("TERMCHAT_LOG_FILE", fallback(file.LogFile, "/tmp/termchat.log")),
		LogLevel:    parseLogLevel(getEnv("TERMCHAT_LOG_LEVEL", fallback(file.LogLevel, "INFO"))),
		DataDir:     getEnv("TERMCHAT_DATA_DIR", fallback(file.DataDir, defaultDataDir())),
	}

	if cfg.PageSize < 1 {
		cfg.PageSize = 20
	}

	return cfg
}

// ConfigFilePath returns the location of the optional YAML config file.
func ConfigFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "termchat", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "termchat", "config.yaml")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "termchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "termchat")
	}
	return filepath.Join(home, ".local", "share", "termchat")
}

func loadFile(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	// A broken config file should not prevent startup; env/defaults still apply.
	_ = yaml.Unmarshal(data, &fc)
	return fc
}

func fallback(val, def string) string {
	if val != "" {
		return val
	}
	return def
}

func fallbackInt(val, def int) int {
	if val != 0 {
		return val
	}
	return def
}

func fallbackDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
