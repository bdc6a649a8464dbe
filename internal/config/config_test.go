package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hblink4.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalValidConfig = `{
  "global": {
    "bind_ipv4": "0.0.0.0",
    "port_ipv4": 62031
  },
  "access_control": {
    "default_policy": "deny"
  },
  "repeater_configs": [
    {
      "radio_id": 312000,
      "passphrase": "secret"
    }
  ]
}`

func TestLoad_ValidConfigParsesAndFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalValidConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.MaxMissed != 3 {
		t.Errorf("expected default max_missed 3, got %d", cfg.Global.MaxMissed)
	}
	if cfg.Global.StreamHangTime != 10.0 {
		t.Errorf("expected default stream_hang_time 10.0, got %v", cfg.Global.StreamHangTime)
	}
	if len(cfg.RepeaterConfigs) != 1 || cfg.RepeaterConfigs[0].Passphrase != "secret" {
		t.Fatalf("unexpected repeater configs: %+v", cfg.RepeaterConfigs)
	}
	if cfg.RepeaterConfigs[0].Slot1Talkgroups == nil || !cfg.RepeaterConfigs[0].Slot1Talkgroups.Wildcard {
		t.Error("expected an absent slot1_talkgroups key to normalize to wildcard")
	}
}

func TestLoad_MissingPassphraseIsStillValid(t *testing.T) {
	// passphrase is not itself required by validate(); this documents the
	// current behavior rather than asserting an invariant that doesn't exist.
	cfg, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {"default_policy": "allow"},
		"repeater_configs": [{"radio_id": 312000}]
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessControl.DefaultPolicy != "allow" {
		t.Errorf("expected default_policy allow, got %q", cfg.AccessControl.DefaultPolicy)
	}
}

func TestLoad_RejectsBadDefaultPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {"default_policy": "maybe"}
	}`))
	if err == nil {
		t.Fatal("expected an error for an invalid default_policy")
	}
}

func TestLoad_RejectsNoPorts(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 0, "port_ipv6": 0},
		"access_control": {"default_policy": "deny"}
	}`))
	if err == nil {
		t.Fatal("expected an error when neither port is configured")
	}
}

func TestLoad_RejectsAmbiguousRule(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {
			"default_policy": "deny",
			"authentication": {
				"rules": [{"radio_id": 1, "callsign": "W1ABC", "passphrase": "x"}]
			}
		}
	}`))
	if err == nil {
		t.Fatal("expected an error for a rule matching on both radio_id and callsign")
	}
}

func TestLoad_RejectsInvalidRadioIDRange(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {
			"default_policy": "deny",
			"authentication": {
				"rules": [{"radio_id_range": "500-100", "passphrase": "x"}]
			}
		}
	}`))
	if err == nil {
		t.Fatal("expected an error for a descending radio_id_range")
	}
}

func TestLoad_RejectsDuplicateOutboundID(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {"default_policy": "deny"},
		"outbound_connections": [
			{"name": "a", "host": "h1", "port": 1, "our_id": 100},
			{"name": "b", "host": "h2", "port": 2, "our_id": 100}
		]
	}`))
	if err == nil {
		t.Fatal("expected an error for two outbound connections reserving the same our_id")
	}
}

func TestLoad_TalkgroupListVariants(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"global": {"port_ipv4": 62031},
		"access_control": {"default_policy": "deny"},
		"repeater_configs": [
			{
				"radio_id": 1, "passphrase": "a",
				"slot1_talkgroups": "*",
				"slot2_talkgroups": []
			},
			{
				"radio_id": 2, "passphrase": "b",
				"slot1_talkgroups": [1, 2, 3]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	rc0 := cfg.RepeaterConfigs[0]
	if !rc0.Slot1Talkgroups.Wildcard {
		t.Error("expected explicit \"*\" to be wildcard")
	}
	if rc0.Slot2Talkgroups.Wildcard || len(rc0.Slot2Talkgroups.IDs) != 0 {
		t.Errorf("expected [] to be an explicit empty (deny-all) set, got %+v", rc0.Slot2Talkgroups)
	}

	rc1 := cfg.RepeaterConfigs[1]
	if rc1.Slot1Talkgroups.Wildcard || len(rc1.Slot1Talkgroups.IDs) != 3 {
		t.Errorf("expected an explicit 3-element set, got %+v", rc1.Slot1Talkgroups)
	}
	if rc1.Slot2Talkgroups == nil || !rc1.Slot2Talkgroups.Wildcard {
		t.Error("expected an absent slot2_talkgroups to default to wildcard")
	}
}

func TestBuildMatcher_RepeaterConfigsDoubleAsAuthRules(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalValidConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	m := cfg.BuildMatcher()
	grant, err := m.Authenticate(312000, "")
	if err != nil {
		t.Fatalf("expected the configured repeater to authenticate: %v", err)
	}
	if grant.Passphrase != "secret" {
		t.Errorf("expected passphrase %q, got %q", "secret", grant.Passphrase)
	}
	if !grant.TS1.Allows(9999) {
		t.Error("expected wildcard TS1 grant for a repeater with no slot1_talkgroups key")
	}

	if _, err := m.Authenticate(999999, ""); err == nil {
		t.Error("expected an unconfigured radio id to be denied under default_policy deny")
	}
}
