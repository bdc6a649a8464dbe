package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

var tgListType = reflect.TypeOf(TGList{})

// tgListDecodeHook implements the TG-list JSON convention: absent key or the
// literal string "*" is wildcard; [] is deny-all; [n, ...] is an exact set.
// mapstructure calls this once per field present in the JSON; an absent key
// leaves the *TGList field nil, which normalizeTGLists (validation.go) turns
// into wildcard for repeater_configs and BuildMatcher treats as wildcard for
// rules.
func tgListDecodeHook(from reflect.Value, to reflect.Value) (interface{}, error) {
	toType := to.Type()
	if toType.Kind() == reflect.Ptr {
		toType = toType.Elem()
	}
	if toType != tgListType {
		return from.Interface(), nil
	}

	switch v := from.Interface().(type) {
	case string:
		if v == "*" || v == "" {
			return TGList{Wildcard: true}, nil
		}
		return TGList{}, fmt.Errorf("config: invalid talkgroup list string %q (only \"*\" or \"\" is accepted)", v)
	case []interface{}:
		ids := make([]uint32, 0, len(v))
		for _, raw := range v {
			n, err := toUint32(raw)
			if err != nil {
				return TGList{}, fmt.Errorf("config: invalid talkgroup id %v: %w", raw, err)
			}
			ids = append(ids, n)
		}
		return TGList{IDs: ids}, nil
	case nil:
		return TGList{Wildcard: true}, nil
	default:
		return from.Interface(), nil
	}
}

func toUint32(raw interface{}) (uint32, error) {
	switch n := raw.(type) {
	case float64:
		return uint32(n), nil
	case int:
		return uint32(n), nil
	case uint32:
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", raw)
	}
}

var _ mapstructure.DecodeHookFuncValue = tgListDecodeHook
