package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and parses the configuration file at configPath.
// Unset keys take their value from Defaults.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := VerifyChecksum(absPath); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyDefaults restores defaults for keys that were explicitly zeroed.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Dispatch.TickRate == 0 {
		cfg.Dispatch.TickRate = defaults.Dispatch.TickRate
	}
	if cfg.Dispatch.CompletionBuffer == 0 {
		cfg.Dispatch.CompletionBuffer = defaults.Dispatch.CompletionBuffer
	}
	if len(cfg.Runners.Shell.Interpreter) == 0 {
		cfg.Runners.Shell.Interpreter = defaults.Runners.Shell.Interpreter
	}
	if cfg.Runners.Shell.KillGrace == 0 {
		cfg.Runners.Shell.KillGrace = defaults.Runners.Shell.KillGrace
	}
	if cfg.Link.Backend == "" {
		cfg.Link.Backend = defaults.Link.Backend
	}
	if cfg.Link.SQLite.PollInterval == 0 {
		cfg.Link.SQLite.PollInterval = defaults.Link.SQLite.PollInterval
	}
	if cfg.Link.SQLite.BatchSize == 0 {
		cfg.Link.SQLite.BatchSize = defaults.Link.SQLite.BatchSize
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by validate where it matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Dispatch.TickRate < 0 || cfg.Dispatch.TickRate > 10000 {
		return fmt.Errorf("dispatch.tick_rate must be between 1 and 10000 (got %d)", cfg.Dispatch.TickRate)
	}
	if cfg.Dispatch.CompletionBuffer < 0 {
		return fmt.Errorf("dispatch.completion_buffer must be positive")
	}

	if cfg.Runners.Shell.Interpreter[0] == "" {
		return fmt.Errorf("runners.shell.interpreter[0] is required")
	}
	if cfg.Runners.Shell.Timeout < 0 {
		return fmt.Errorf("runners.shell.timeout must not be negative")
	}

	switch cfg.Link.Backend {
	case BackendSQLite:
		if cfg.Link.SQLite.Path == "" {
			return fmt.Errorf("link.sqlite.path is required")
		}
		if cfg.Link.SQLite.BatchSize < 0 {
			return fmt.Errorf("link.sqlite.batch_size must be positive")
		}
	case BackendRedis:
		r := cfg.Link.Redis
		if r.Addr == "" || r.RequestsStream == "" || r.ResponsesStream == "" || r.Group == "" {
			return fmt.Errorf("link.redis requires addr, requests_stream, responses_stream and group")
		}
		if err := unresolved("link.redis.password", r.Password); err != nil {
			return err
		}
	default:
		return fmt.Errorf("link.backend must be one of: sqlite, redis (got %q)", cfg.Link.Backend)
	}

	if cfg.API.Enabled {
		if cfg.Link.Backend != BackendSQLite {
			return fmt.Errorf("api requires link.backend %q", BackendSQLite)
		}
		if cfg.API.Auth.APIKey == "" {
			return fmt.Errorf("api.auth.api_key is required when api is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}

	if cfg.Lock.Path == "" {
		return fmt.Errorf("lock.path is required")
	}
	return nil
}
