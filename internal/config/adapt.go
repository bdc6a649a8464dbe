package config

import "github.com/hblink4/hblink4/internal/access"

// ToTalkgroupSet converts the JSON TG-list encoding to the access package's
// runtime representation.
func (l TGList) ToTalkgroupSet() access.TalkgroupSet {
	if l.Wildcard {
		return access.Wildcard()
	}
	return access.NewTalkgroupSet(l.IDs)
}

// ToAccessRule converts one configured rule, plus the grant it carries, into
// the access package's runtime Rule.
func (r RuleConfig) ToAccessRule(passphrase string, ts1, ts2 access.TalkgroupSet) access.Rule {
	rule := access.Rule{Passphrase: passphrase, TS1: ts1, TS2: ts2}
	switch {
	case r.RadioID != nil:
		rule.Kind = access.KindRadioIDExact
		rule.RadioID = *r.RadioID
	case r.RadioIDRange != nil:
		rule.Kind = access.KindRadioIDRange
		rule.RadioIDStart, rule.RadioIDEnd = r.RadioIDRangeBounds()
	case r.Callsign != nil:
		rule.Kind = access.KindCallsignExact
		rule.Callsign = *r.Callsign
	case r.CallsignWild != nil:
		rule.Kind = access.KindCallsignWildcard
		rule.Callsign = *r.CallsignWild
	}
	return rule
}

// BuildMatcher assembles the access.Matcher from the repeater_configs and
// access_control sections. repeater_configs double as authentication rules:
// each carries its own passphrase and TG sets, evaluated with the same
// specificity ordering as access_control.authentication.rules.
func (c *Config) BuildMatcher() *access.Matcher {
	m := &access.Matcher{}
	switch c.AccessControl.DefaultPolicy {
	case "allow":
		m.DefaultPolicy = access.PolicyAllow
	default:
		m.DefaultPolicy = access.PolicyDeny
	}

	for _, rc := range c.RepeaterConfigs {
		ts1 := access.Wildcard()
		ts2 := access.Wildcard()
		if rc.Slot1Talkgroups != nil {
			ts1 = rc.Slot1Talkgroups.ToTalkgroupSet()
		}
		if rc.Slot2Talkgroups != nil {
			ts2 = rc.Slot2Talkgroups.ToTalkgroupSet()
		}
		m.Rules = append(m.Rules, rc.Match.ToAccessRule(rc.Passphrase, ts1, ts2))
	}
	for _, rule := range c.AccessControl.Authentication.Rules {
		ts1, ts2 := access.Wildcard(), access.Wildcard()
		if rule.Slot1TGs != nil {
			ts1 = rule.Slot1TGs.ToTalkgroupSet()
		}
		if rule.Slot2TGs != nil {
			ts2 = rule.Slot2TGs.ToTalkgroupSet()
		}
		m.Rules = append(m.Rules, rule.ToAccessRule(rule.Passphrase, ts1, ts2))
	}
	for _, rule := range c.AccessControl.Blacklist {
		m.Blacklist = append(m.Blacklist, rule.ToAccessRule("", access.TalkgroupSet{}, access.TalkgroupSet{}))
	}
	return m
}
