package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey with nil config, got %v", err)
	}

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-config"}}
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if key != "sk-ant-from-config" {
		t.Errorf("expected config key, got %q", key)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
	key, err = GetAPIKey(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if key != "sk-ant-from-env" {
		t.Errorf("expected env to win, got %q", key)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"empty", "", true},
		{"wrong prefix", "sk-live-aaaaaaaaaaaaaaaa", true},
		{"too short", "sk-ant-x", true},
		{"valid", "sk-ant-REDACTED", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAPIKey(tc.key)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tc.key, err, tc.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("expected (not set), got %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("expected ***, got %q", got)
	}
	got := MaskAPIKey("sk-ant-REDACTED")
	if got != "sk-ant-...mnop" {
		t.Errorf("unexpected mask: %q", got)
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if got := GetAPIKeySource(nil); got != KeySourceNone {
		t.Errorf("expected none, got %s", got)
	}

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-x-aaaaaaaaaa"}}
	if got := GetAPIKeySource(cfg); got != KeySourceConfig {
		t.Errorf("expected config_file, got %s", got)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-y")
	if got := GetAPIKeySource(cfg); got != KeySourceEnv {
		t.Errorf("expected environment, got %s", got)
	}
}
