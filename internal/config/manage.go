package config

import (
	"fmt"
	"strconv"
)

// KeyInfo is one row of `keydocs config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// publicSpecs is the key table without secrets, in declaration order.
func publicSpecs() []keySpec {
	out := make([]keySpec, 0, len(specs))
	for _, s := range specs {
		if !s.secret {
			out = append(out, s)
		}
	}
	return out
}

// ShowAll renders every non-secret key of cfg.
func ShowAll(cfg Config) []KeyInfo {
	pub := publicSpecs()
	rows := make([]KeyInfo, len(pub))
	for i, s := range pub {
		rows[i] = KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg))}
	}
	return rows
}

// ValidKeys lists the keys accepted by SetKey.
func ValidKeys() []string {
	pub := publicSpecs()
	keys := make([]string, len(pub))
	for i, s := range pub {
		keys[i] = s.key
	}
	return keys
}

// SetKey validates value against the key's type and persists it in the
// platform backend.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	switch {
	case !ok:
		return fmt.Errorf("unknown config key: %q", key)
	case s.secret:
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}

	v, err := parseValue(s, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if n, isInt := v.(int); isInt {
		return b.SetInt(key, n)
	}
	// Non-int values round-trip through their canonical string form.
	return b.SetString(key, formatValue(v))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
