package model

import (
	"encoding/json"
	"strings"
)

// ParseValue unwraps the host's diff representation. While a document is
// being compared, cells arrive as {"value": "V(<json>)"} where the payload
// carries remote, local and parent versions; the first set one wins.
func ParseValue(v any) any {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return v
	}
	s, ok := obj["value"].(string)
	if !ok || !strings.HasPrefix(s, "V(") || !strings.HasSuffix(s, ")") {
		return v
	}

	var payload any
	if err := json.Unmarshal([]byte(s[2:len(s)-1]), &payload); err != nil {
		return v
	}
	versions, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	for _, key := range []string{"remote", "local", "parent"} {
		if Truthy(versions[key]) {
			return versions[key]
		}
	}
	return payload
}
