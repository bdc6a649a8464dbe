package access

import "testing"

func TestTalkgroupSet(t *testing.T) {
	if !Wildcard().Allows(9999) {
		t.Error("wildcard set should allow any talkgroup")
	}

	empty := NewTalkgroupSet(nil)
	if empty.Allows(1) {
		t.Error("an empty explicit set should deny everything")
	}

	set := NewTalkgroupSet([]uint32{1, 2, 3})
	if !set.Allows(2) {
		t.Error("expected set to allow a listed talkgroup")
	}
	if set.Allows(4) {
		t.Error("expected set to deny an unlisted talkgroup")
	}
}

func TestAuthenticate_ExactRadioIDWins(t *testing.T) {
	m := &Matcher{
		DefaultPolicy: PolicyAllow,
		Rules: []Rule{
			{Kind: KindCallsignWildcard, Callsign: "W1*", Passphrase: "wildcard-pw", TS1: Wildcard(), TS2: Wildcard()},
			{Kind: KindRadioIDExact, RadioID: 312000, Passphrase: "exact-pw", TS1: NewTalkgroupSet([]uint32{50})},
		},
	}

	grant, err := m.Authenticate(312000, "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Passphrase != "exact-pw" {
		t.Errorf("expected the exact radio id rule to win over the wildcard callsign rule, got passphrase %q", grant.Passphrase)
	}
}

func TestAuthenticate_RangeBeatsWildcard(t *testing.T) {
	m := &Matcher{
		Rules: []Rule{
			{Kind: KindCallsignWildcard, Callsign: "W1*", Passphrase: "wildcard-pw"},
			{Kind: KindRadioIDRange, RadioIDStart: 312000, RadioIDEnd: 312099, Passphrase: "range-pw"},
		},
	}

	grant, err := m.Authenticate(312050, "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Passphrase != "range-pw" {
		t.Errorf("expected the range rule to win over the wildcard callsign rule, got %q", grant.Passphrase)
	}
}

func TestAuthenticate_BlacklistTakesPrecedence(t *testing.T) {
	m := &Matcher{
		DefaultPolicy: PolicyAllow,
		Rules:         []Rule{{Kind: KindRadioIDExact, RadioID: 312000, Passphrase: "ok"}},
		Blacklist:     []Rule{{Kind: KindRadioIDExact, RadioID: 312000}},
	}

	_, err := m.Authenticate(312000, "W1ABC")
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for blacklisted radio, got %v", err)
	}
}

func TestAuthenticate_DefaultPolicyDeny(t *testing.T) {
	m := &Matcher{DefaultPolicy: PolicyDeny}

	_, err := m.Authenticate(312000, "W1ABC")
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized under deny-by-default with no matching rule, got %v", err)
	}
}

func TestAuthenticate_DefaultPolicyAllowGrantsWildcard(t *testing.T) {
	m := &Matcher{DefaultPolicy: PolicyAllow}

	grant, err := m.Authenticate(312000, "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !grant.TS1.Allows(1234) || !grant.TS2.Allows(5678) {
		t.Error("expected default-allow grant to permit any talkgroup on both slots")
	}
}

func TestAuthenticate_CallsignWildcardMatch(t *testing.T) {
	m := &Matcher{
		Rules: []Rule{{Kind: KindCallsignWildcard, Callsign: "KC1*", Passphrase: "matched"}},
	}

	grant, err := m.Authenticate(1, "kc1xyz")
	if err != nil {
		t.Fatalf("expected case-insensitive wildcard match, got error: %v", err)
	}
	if grant.Passphrase != "matched" {
		t.Errorf("expected matched passphrase, got %q", grant.Passphrase)
	}

	if _, err := m.Authenticate(2, "W1ABC"); err != ErrUnauthorized {
		t.Errorf("expected non-matching callsign to fall through to deny-by-default, got %v", err)
	}
}

func TestIsBlacklisted(t *testing.T) {
	m := &Matcher{
		Blacklist: []Rule{
			{Kind: KindRadioIDRange, RadioIDStart: 1, RadioIDEnd: 100},
			{Kind: KindCallsignExact, Callsign: "BADCALL"},
		},
	}

	if !m.IsBlacklisted(50, "W1ABC") {
		t.Error("expected radio id in blacklisted range to match")
	}
	if !m.IsBlacklisted(9999, "badcall") {
		t.Error("expected case-insensitive callsign blacklist match")
	}
	if m.IsBlacklisted(9999, "W1ABC") {
		t.Error("expected non-matching radio id and callsign to not be blacklisted")
	}
}
