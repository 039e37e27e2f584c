package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty document uses defaults",
			yaml: ``,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Dispatch.TickRate != 128 {
					t.Errorf("tick_rate = %d, want 128", cfg.Dispatch.TickRate)
				}
				if cfg.Link.Backend != BackendSQLite {
					t.Errorf("backend = %q, want sqlite", cfg.Link.Backend)
				}
				if got := strings.Join(cfg.Runners.Shell.Interpreter, " "); got != "/bin/sh -c" {
					t.Errorf("interpreter = %q", got)
				}
				if cfg.Runners.Shell.Timeout != 0 {
					t.Errorf("timeout = %v, want disabled", cfg.Runners.Shell.Timeout)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: worker-1
  log_level: debug
dispatch:
  tick_rate: 64
  completion_buffer: 16
runners:
  shell:
    interpreter: ["/bin/bash", "-lc"]
    timeout: 90s
    kill_grace: 2s
link:
  backend: sqlite
  sqlite:
    path: /var/lib/kairoi/state.db
    poll_interval: 1s
    batch_size: 10
lock:
  path: /run/kairoi.lock
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "worker-1" || cfg.Service.LogLevel != "debug" {
					t.Errorf("service not parsed: %+v", cfg.Service)
				}
				if cfg.Dispatch.TickRate != 64 || cfg.Dispatch.CompletionBuffer != 16 {
					t.Errorf("dispatch not parsed: %+v", cfg.Dispatch)
				}
				if cfg.Runners.Shell.Timeout != 90*time.Second || cfg.Runners.Shell.KillGrace != 2*time.Second {
					t.Errorf("shell durations not parsed: %+v", cfg.Runners.Shell)
				}
				if cfg.Runners.Shell.Interpreter[0] != "/bin/bash" {
					t.Errorf("interpreter not parsed: %v", cfg.Runners.Shell.Interpreter)
				}
				if cfg.Link.SQLite.PollInterval != time.Second || cfg.Link.SQLite.BatchSize != 10 {
					t.Errorf("sqlite not parsed: %+v", cfg.Link.SQLite)
				}
			},
		},
		{
			name: "redis backend with env interpolation",
			yaml: `
link:
  backend: redis
  redis:
    addr: ${KAIROI_TEST_REDIS}
    password: ${KAIROI_TEST_REDIS_PASSWORD}
`,
			env: map[string]string{"KAIROI_TEST_REDIS": "redis.internal:6380", "KAIROI_TEST_REDIS_PASSWORD": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Link.Redis.Addr != "redis.internal:6380" {
					t.Errorf("addr = %q", cfg.Link.Redis.Addr)
				}
				if cfg.Link.Redis.Password != "s3cret" {
					t.Errorf("password not interpolated")
				}
				if cfg.Link.Redis.RequestsStream != "kairoi:requests" {
					t.Errorf("default stream lost: %q", cfg.Link.Redis.RequestsStream)
				}
			},
		},
		{
			name:    "unresolved api key",
			yaml:    "api:\n  enabled: true\n  auth:\n    api_key: ${KAIROI_TEST_UNSET_KEY}\n",
			wantErr: "${KAIROI_TEST_UNSET_KEY} is not set",
		},
		{
			name:    "api without key",
			yaml:    "api:\n  enabled: true\n",
			wantErr: "api.auth.api_key is required",
		},
		{
			name:    "api on redis backend",
			yaml:    "link:\n  backend: redis\napi:\n  enabled: true\n  auth:\n    api_key: k\n",
			wantErr: "api requires link.backend",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad backend",
			yaml:    "link:\n  backend: kafka\n",
			wantErr: "link.backend",
		},
		{
			name:    "negative tick rate",
			yaml:    "dispatch:\n  tick_rate: -1\n",
			wantErr: "dispatch.tick_rate",
		},
		{
			name:    "unknown key",
			yaml:    "dispatch:\n  tickrate: 10\n",
			wantErr: "field tickrate not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "from-file" {
		t.Errorf("name = %q", cfg.Service.Name)
	}
}
