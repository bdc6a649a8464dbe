package config

import (
	"fmt"
	"strconv"
	"strings"
)

// validate checks structural invariants and normalizes TG-list defaults.
// Mirrors the teacher's fatal-at-startup, report-field-and-reason idiom.
func validate(cfg *Config) error {
	if cfg.Global.PortIPv4 <= 0 && cfg.Global.PortIPv6 <= 0 {
		return fmt.Errorf("config: at least one of global.port_ipv4/port_ipv6 must be set")
	}
	if cfg.Global.MaxMissed <= 0 {
		return fmt.Errorf("config: global.max_missed must be > 0")
	}
	if cfg.Global.TimeoutDuration <= 0 {
		return fmt.Errorf("config: global.timeout_duration must be > 0")
	}
	if cfg.Global.StreamTimeout <= 0 {
		return fmt.Errorf("config: global.stream_timeout must be > 0")
	}
	if cfg.Global.StreamHangTime <= 0 {
		return fmt.Errorf("config: global.stream_hang_time must be > 0")
	}
	if cfg.Global.UserCache.Timeout > 0 && cfg.Global.UserCache.Timeout < 60 {
		return fmt.Errorf("config: global.user_cache.timeout must be >= 60")
	}

	switch cfg.AccessControl.DefaultPolicy {
	case "allow", "deny":
	default:
		return fmt.Errorf("config: access_control.default_policy must be \"allow\" or \"deny\", got %q", cfg.AccessControl.DefaultPolicy)
	}

	for i := range cfg.AccessControl.Authentication.Rules {
		if err := validateRule(&cfg.AccessControl.Authentication.Rules[i]); err != nil {
			return fmt.Errorf("config: access_control.authentication.rules[%d]: %w", i, err)
		}
	}
	for i := range cfg.AccessControl.Blacklist {
		if err := validateRule(&cfg.AccessControl.Blacklist[i]); err != nil {
			return fmt.Errorf("config: access_control.blacklist[%d]: %w", i, err)
		}
	}

	reserved := make(map[uint32]string, len(cfg.OutboundConnections))
	for i := range cfg.RepeaterConfigs {
		rc := &cfg.RepeaterConfigs[i]
		if err := validateRule(&rc.Match); err != nil {
			return fmt.Errorf("config: repeater_configs[%d].match: %w", i, err)
		}
		normalizeTGLists(&rc.Slot1Talkgroups, &rc.Slot2Talkgroups)
	}

	for i := range cfg.OutboundConnections {
		oc := &cfg.OutboundConnections[i]
		if oc.Name == "" {
			return fmt.Errorf("config: outbound_connections[%d]: name is required", i)
		}
		if oc.Host == "" {
			return fmt.Errorf("config: outbound_connections[%d] %q: host is required", i, oc.Name)
		}
		if oc.Port <= 0 || oc.Port > 65535 {
			return fmt.Errorf("config: outbound_connections[%d] %q: port out of range", i, oc.Name)
		}
		if existing, dup := reserved[oc.OurID]; dup {
			return fmt.Errorf("config: outbound_connections[%d] %q: our_id %d already reserved by %q", i, oc.Name, oc.OurID, existing)
		}
		reserved[oc.OurID] = oc.Name
	}

	switch cfg.Dashboard.Transport {
	case "", "unix", "tcp":
	default:
		return fmt.Errorf("config: dashboard.transport must be \"unix\" or \"tcp\", got %q", cfg.Dashboard.Transport)
	}
	if cfg.Dashboard.Transport == "unix" && cfg.Dashboard.UnixSocket == "" {
		return fmt.Errorf("config: dashboard.unix_socket is required when transport is \"unix\"")
	}
	if cfg.Dashboard.Transport == "tcp" && cfg.Dashboard.Port <= 0 {
		return fmt.Errorf("config: dashboard.port is required when transport is \"tcp\"")
	}

	return nil
}

func validateRule(r *RuleConfig) error {
	set := 0
	if r.RadioID != nil {
		set++
	}
	if r.RadioIDRange != nil {
		set++
		if _, _, err := parseRange(*r.RadioIDRange); err != nil {
			return fmt.Errorf("invalid radio_id_range %q: %w", *r.RadioIDRange, err)
		}
	}
	if r.Callsign != nil {
		set++
	}
	if r.CallsignWild != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of radio_id/radio_id_range/callsign/callsign_wild must be set, got %d", set)
	}
	return nil
}

func parseRange(s string) (uint32, uint32, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"start-end\"")
	}
	start, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("range end before start")
	}
	return uint32(start), uint32(end), nil
}

// normalizeTGLists applies the absent-key-means-wildcard default: a nil
// pointer (the JSON key was never present) becomes wildcard; a present,
// possibly empty, list is used as written.
func normalizeTGLists(slot1, slot2 **TGList) {
	if *slot1 == nil {
		*slot1 = &TGList{Wildcard: true}
	}
	if *slot2 == nil {
		*slot2 = &TGList{Wildcard: true}
	}
}

// RadioIDRangeBounds parses a validated "start-end" range string.
func (r RuleConfig) RadioIDRangeBounds() (start, end uint32) {
	if r.RadioIDRange == nil {
		return 0, 0
	}
	start, end, _ = parseRange(*r.RadioIDRange)
	return start, end
}
