package localstore

import "strings"

// SanitizeTenant strips a tenant identifier down to [A-Za-z0-9_-].
func SanitizeTenant(tenant string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(tenant) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ScopedKey builds the persisted key of a collection: "<tenant>_<collection>"
// when a tenant scope is set, the bare collection key otherwise.
func ScopedKey(tenant, collection string) string {
	if t := SanitizeTenant(tenant); t != "" {
		return t + "_" + collection
	}
	return collection
}
