// Package config loads client configuration from environment variables,
// with an optional YAML overlay for the tunables that get adjusted per
// deployment (poll intervals, chips, limits).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds all configuration for the live table client
type ClientConfig struct {
	Backend BackendConfig
	Polling PollingConfig
	Betting BettingConfig
	Mirror  MirrorConfig
	Admin   AdminConfig
	Log     LogConfig
}

type BackendConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	WSURL      string `yaml:"ws_url"`
	TableID    string `yaml:"table_id"`
}

type PollingConfig struct {
	LobbySeconds   int `yaml:"lobby_seconds"`
	OddsSeconds    int `yaml:"odds_seconds"`
	WagersSeconds  int `yaml:"wagers_seconds"`
	BalanceSeconds int `yaml:"balance_seconds"`
}

type BettingConfig struct {
	Chips          []float64 `yaml:"chips"`
	AutoAcceptOdds bool      `yaml:"auto_accept_odds"`
}

type MirrorConfig struct {
	// RepoType selects the mirror backing store: memory, db or redis.
	RepoType   string `yaml:"repo_type"`
	SQLitePath string `yaml:"sqlite_path"`
	Database   DatabaseConfig
	Redis      RedisConfig
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN builds the Postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type AdminConfig struct {
	// Port for the debug server; empty disables it.
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// LoadClientConfig loads configuration from the environment. When
// LIVETABLE_CONFIG points at a YAML file, its values overlay the
// environment-derived defaults.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{
		Backend: BackendConfig{
			APIBaseURL: getEnv("LIVETABLE_API_URL", "http://localhost:8080"),
			WSURL:      getEnv("LIVETABLE_WS_URL", "ws://localhost:8080/ws"),
			TableID:    getEnv("LIVETABLE_TABLE_ID", "CF01"),
		},
		Polling: PollingConfig{
			LobbySeconds:   getEnvInt("LIVETABLE_POLL_LOBBY", 5),
			OddsSeconds:    getEnvInt("LIVETABLE_POLL_ODDS", 30),
			WagersSeconds:  getEnvInt("LIVETABLE_POLL_WAGERS", 60),
			BalanceSeconds: getEnvInt("LIVETABLE_POLL_BALANCE", 120),
		},
		Betting: BettingConfig{
			Chips:          []float64{1, 5, 10, 50, 100, 500, 1000},
			AutoAcceptOdds: getEnvBool("LIVETABLE_AUTO_ACCEPT_ODDS", true),
		},
		Mirror: MirrorConfig{
			RepoType:   getEnv("MIRROR_REPO_TYPE", "memory"),
			SQLitePath: getEnv("MIRROR_SQLITE_PATH", "livetable.db"),
			Database: DatabaseConfig{
				Host:     getEnv("DB_HOST", "localhost"),
				Port:     getEnv("DB_PORT", "5432"),
				User:     getEnv("DB_USER", "livetable_user"),
				Password: getEnv("DB_PASSWORD", "livetable_pass"),
				Name:     getEnv("DB_NAME", "livetable_db"),
			},
			Redis: RedisConfig{
				Host: getEnv("REDIS_HOST", "localhost"),
				Port: getEnv("REDIS_PORT", "6379"),
			},
		},
		Admin: AdminConfig{
			Port: getEnv("LIVETABLE_ADMIN_PORT", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	if path := os.Getenv("LIVETABLE_CONFIG"); path != "" {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func overlayYAML(cfg *ClientConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Interval converts a configured second count into a duration with a floor
// of one second, so a typo cannot spin a poll loop hot.
func Interval(seconds int) time.Duration {
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
