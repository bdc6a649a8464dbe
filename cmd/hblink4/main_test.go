package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hblink4/hblink4/internal/config"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hblink4.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfigBody = `{
  "global": {"port_ipv4": 62031},
  "access_control": {"default_policy": "deny"},
  "repeater_configs": [{"radio_id": 312000, "passphrase": "secret"}]
}`

func TestRun_ValidateOnlyReturnsNilWithoutStartingServer(t *testing.T) {
	path := writeTestConfig(t, validConfigBody)
	if err := run(path, true); err != nil {
		t.Fatalf("expected --validate on a valid config to succeed, got %v", err)
	}
}

func TestRun_ConfigErrorReturnsExitConfigErr(t *testing.T) {
	path := writeTestConfig(t, `{"access_control": {"default_policy": "not-a-policy"}}`)
	err := run(path, true)
	if err == nil {
		t.Fatal("expected an error for an invalid configuration")
	}
	ce, ok := err.(*exitError)
	if !ok {
		t.Fatalf("expected an *exitError, got %T", err)
	}
	if ce.code != exitConfigErr {
		t.Errorf("expected exit code %d, got %d", exitConfigErr, ce.code)
	}
}

func TestRun_MissingFileReturnsExitConfigErr(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "missing.json"), true)
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	if ce, ok := err.(*exitError); !ok || ce.code != exitConfigErr {
		t.Fatalf("expected an *exitError with code %d, got %#v", exitConfigErr, err)
	}
}

func TestUserCacheTTL_DefaultsWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	if got := userCacheTTL(cfg); got != 600*time.Second {
		t.Errorf("expected default TTL of 600s, got %v", got)
	}
}

func TestUserCacheTTL_UsesConfiguredValue(t *testing.T) {
	cfg := &config.Config{}
	cfg.Global.UserCache.Timeout = 120
	if got := userCacheTTL(cfg); got != 120*time.Second {
		t.Errorf("expected TTL of 120s, got %v", got)
	}
}

func TestExitError_ErrorString(t *testing.T) {
	e := &exitError{code: exitBindErr}
	if e.Error() != "" {
		t.Errorf("expected an empty string for a nil wrapped error, got %q", e.Error())
	}
}
