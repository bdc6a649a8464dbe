package server

import (
	"strconv"
	"strings"

	"github.com/hblink4/hblink4/internal/access"
)

// applyOptionsString parses a repeater's RPTO options string, e.g.
// "TS1=1,2,3;TS2=10,20", overriding the given defaults for whichever slot
// keys are present. A bare "*" (or an empty value) sets that slot to
// wildcard; an absent key leaves that slot's default (the grant from
// authentication) untouched.
func applyOptionsString(options string, defaultTS1, defaultTS2 access.TalkgroupSet) (ts1, ts2 access.TalkgroupSet) {
	ts1, ts2 = defaultTS1, defaultTS2
	for _, field := range strings.Split(options, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		parts := strings.SplitN(field, "=", 2)
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		var val string
		if len(parts) == 2 {
			val = strings.TrimSpace(parts[1])
		}
		switch key {
		case "TS1":
			ts1 = parseOptionTGList(val)
		case "TS2":
			ts2 = parseOptionTGList(val)
		}
	}
	return ts1, ts2
}

func parseOptionTGList(val string) access.TalkgroupSet {
	if val == "" || val == "*" {
		return access.Wildcard()
	}
	var ids []uint32
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(n))
	}
	return access.NewTalkgroupSet(ids)
}
