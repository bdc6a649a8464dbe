// Package config loads and validates the HBlink4 JSON configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the fully validated, immutable configuration tree.
type Config struct {
	Global             Global              `mapstructure:"global"`
	AccessControl      AccessControl       `mapstructure:"access_control"`
	RepeaterConfigs    []RepeaterConfig    `mapstructure:"repeater_configs"`
	OutboundConnections []OutboundConn     `mapstructure:"outbound_connections"`
	Dashboard          Dashboard           `mapstructure:"dashboard"`
}

// Global holds listener and timing defaults.
type Global struct {
	BindIPv4        string  `mapstructure:"bind_ipv4"`
	BindIPv6        string  `mapstructure:"bind_ipv6"`
	PortIPv4        int     `mapstructure:"port_ipv4"`
	PortIPv6        int     `mapstructure:"port_ipv6"`
	DisableIPv6     bool    `mapstructure:"disable_ipv6"`
	MaxMissed       int     `mapstructure:"max_missed"`
	TimeoutDuration float64 `mapstructure:"timeout_duration"`
	StreamTimeout   float64 `mapstructure:"stream_timeout"`
	StreamHangTime  float64 `mapstructure:"stream_hang_time"`
	UserCache       UserCacheConfig `mapstructure:"user_cache"`
}

// UserCacheConfig governs the radio-id -> callsign lookup table.
type UserCacheConfig struct {
	Path    string `mapstructure:"path"`
	Timeout int    `mapstructure:"timeout"`
}

// AccessControl is the top-level authentication policy.
type AccessControl struct {
	DefaultPolicy  string `mapstructure:"default_policy"`
	Authentication struct {
		Rules []RuleConfig `mapstructure:"rules"`
	} `mapstructure:"authentication"`
	Blacklist []RuleConfig `mapstructure:"blacklist"`
}

// RuleConfig is one access-control rule as written in JSON. Exactly one of
// RadioID/RadioIDRange/Callsign/CallsignWild should be set.
type RuleConfig struct {
	RadioID       *uint32 `mapstructure:"radio_id"`
	RadioIDRange  *string `mapstructure:"radio_id_range"` // "start-end"
	Callsign      *string `mapstructure:"callsign"`
	CallsignWild  *string `mapstructure:"callsign_wild"`
	Passphrase    string  `mapstructure:"passphrase"`
	Slot1TGs      *TGList `mapstructure:"slot1_talkgroups"`
	Slot2TGs      *TGList `mapstructure:"slot2_talkgroups"`
}

// RepeaterConfig associates a match rule with talkgroup allow-sets and a
// passphrase (the same shape as an authentication rule; kept separate in the
// schema because it is the piece applied to the peer on RPTC acceptance).
// The talkgroup fields are pointers so "key absent" (-> wildcard) can be
// told apart from "key present as []" (-> deny-all); normalizeTGLists fills
// in the wildcard default once validation has seen the raw pointer state.
type RepeaterConfig struct {
	Match           RuleConfig `mapstructure:",squash"`
	Slot1Talkgroups *TGList    `mapstructure:"slot1_talkgroups"`
	Slot2Talkgroups *TGList    `mapstructure:"slot2_talkgroups"`
	Passphrase      string     `mapstructure:"passphrase"`
}

// OutboundConn configures a peer-role connection this server initiates.
type OutboundConn struct {
	Name     string `mapstructure:"name"`
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	OurID    uint32 `mapstructure:"our_id"`
	Password string `mapstructure:"password"`
	Options  string `mapstructure:"options"`
}

// Dashboard configures the event-sink transport.
type Dashboard struct {
	Transport  string `mapstructure:"transport"` // "unix" or "tcp"
	UnixSocket string `mapstructure:"unix_socket"`
	HostIPv4   string `mapstructure:"host_ipv4"`
	HostIPv6   string `mapstructure:"host_ipv6"`
	Port       int    `mapstructure:"port"`
}

// TGList represents the three-way talkgroup-set JSON encoding: absent or
// "*" means wildcard, [] means deny-all, [n,...] means an exact set. It
// unmarshals either a bare "*" string or a JSON array of numbers.
type TGList struct {
	Wildcard bool
	IDs      []uint32
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		tgListDecodeHook,
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global.port_ipv4", 62031)
	v.SetDefault("global.port_ipv6", 62031)
	v.SetDefault("global.max_missed", 3)
	v.SetDefault("global.timeout_duration", 30)
	v.SetDefault("global.stream_timeout", 2.0)
	v.SetDefault("global.stream_hang_time", 10.0)
	v.SetDefault("global.user_cache.timeout", 600)
	v.SetDefault("access_control.default_policy", "deny")
}

// HangTime returns the configured hang-time as a duration.
func (g Global) HangTime() time.Duration {
	return time.Duration(g.StreamHangTime * float64(time.Second))
}

// StreamTimeoutDuration returns the configured silence timeout as a duration.
func (g Global) StreamTimeoutDuration() time.Duration {
	return time.Duration(g.StreamTimeout * float64(time.Second))
}

// KeepaliveInterval returns the keepalive scan interval as a duration.
func (g Global) KeepaliveInterval() time.Duration {
	return time.Duration(g.TimeoutDuration * float64(time.Second))
}
