package config

import "time"

// Config represents the complete kairoi configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Runners  RunnersConfig  `yaml:"runners"`
	Link     LinkConfig     `yaml:"link"`
	API      APIConfig      `yaml:"api,omitempty"`
	Lock     LockConfig     `yaml:"lock"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// DispatchConfig tunes the dispatch loop.
type DispatchConfig struct {
	// TickRate is the maximum number of loop iterations per second.
	TickRate         int `yaml:"tick_rate"`
	CompletionBuffer int `yaml:"completion_buffer"`
}

// RunnersConfig holds per-runner settings.
type RunnersConfig struct {
	Shell ShellConfig `yaml:"shell"`
}

// ShellConfig configures the shell runner.
type ShellConfig struct {
	Interpreter []string      `yaml:"interpreter"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // 0 disables
	KillGrace   time.Duration `yaml:"kill_grace"`
}

// Link backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LinkConfig selects where requests come from and responses go to.
type LinkConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the SQLite job store.
type SQLiteConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// RedisConfig configures the Redis Streams link.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password,omitempty"`
	DB              int    `yaml:"db,omitempty"`
	RequestsStream  string `yaml:"requests_stream"`
	ResponsesStream string `yaml:"responses_stream"`
	Group           string `yaml:"group"`
	Consumer        string `yaml:"consumer,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// LockConfig defines the single-instance lock file.
type LockConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "kairoi",
			LogLevel: "info",
		},
		Dispatch: DispatchConfig{
			TickRate:         128,
			CompletionBuffer: 1024,
		},
		Runners: RunnersConfig{
			Shell: ShellConfig{
				Interpreter: []string{"/bin/sh", "-c"},
				KillGrace:   5 * time.Second,
			},
		},
		Link: LinkConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path:         "./data/kairoi.db",
				PollInterval: 250 * time.Millisecond,
				BatchSize:    64,
			},
			Redis: RedisConfig{
				Addr:            "localhost:6379",
				RequestsStream:  "kairoi:requests",
				ResponsesStream: "kairoi:responses",
				Group:           "kairoi",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Lock: LockConfig{
			Path: "./data/kairoi.lock",
		},
	}
}
