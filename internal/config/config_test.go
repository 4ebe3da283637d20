package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func missingPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(missingPath(t))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("request_timeout = %v, want 30s", cfg.Server.RequestTimeout)
		}
		if cfg.Storage.Type != "memory" {
			t.Errorf("storage.type = %q, want memory", cfg.Storage.Type)
		}
		if cfg.CSRF.CookieName != "csrf_session" {
			t.Errorf("csrf.cookie_name = %q, want csrf_session", cfg.CSRF.CookieName)
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("ACCT_SERVER__PORT", "9000")

		cfg, err := Load(missingPath(t))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		t.Setenv("TEST_JWT_SECRET", "s3cret")
		path := writeConfig(t, `
server:
  port: 7000
  request_timeout: 5s
storage:
  type: sqlite
  sqlite:
    path: /tmp/accounts.db
auth:
  jwt_secret: ${TEST_JWT_SECRET}
  issuer: accounts.test
  api_keys:
    - key_hash: abc123
      user_id: user-1
      description: ci
      claims:
        role: admin
      expires_at: "2030-01-01T00:00:00Z"
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != 7000 || cfg.Server.RequestTimeout != 5*time.Second {
			t.Errorf("server = %+v", cfg.Server)
		}
		if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/accounts.db" {
			t.Errorf("storage = %+v", cfg.Storage)
		}
		if cfg.Auth.JWTSecret != "s3cret" {
			t.Errorf("jwt_secret = %q, want substituted value", cfg.Auth.JWTSecret)
		}
		if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].UserID != "user-1" {
			t.Fatalf("api_keys = %+v", cfg.Auth.APIKeys)
		}
		exp, err := cfg.Auth.APIKeys[0].Expiry()
		if err != nil || exp.Year() != 2030 {
			t.Errorf("Expiry() = %v, %v", exp, err)
		}
	})

	t.Run("invalid storage type", func(t *testing.T) {
		t.Setenv("ACCT_STORAGE__TYPE", "postgres")

		if _, err := Load(missingPath(t)); err == nil {
			t.Error("Load() error = nil, want unknown storage type")
		}
	})
}

func TestValidate_APIKeys(t *testing.T) {
	tests := []struct {
		name    string
		key     APIKeyConfig
		wantErr bool
	}{
		{"valid", APIKeyConfig{KeyHash: "h", UserID: "u"}, false},
		{"missing user", APIKeyConfig{KeyHash: "h"}, true},
		{"bad expiry", APIKeyConfig{KeyHash: "h", UserID: "u", ExpiresAt: "tomorrow"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Storage:   StorageConfig{Type: "memory"},
				Telemetry: TelemetryConfig{Exporter: "none"},
				Auth:      AuthConfig{APIKeys: []APIKeyConfig{tt.key}},
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
