package device

import (
	"strconv"
	"strings"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// NormalizeValue coerces a raw attribute value the same way the hub does,
// so a value compares equal no matter which path delivered it. Switch-like
// strings become booleans, numeric strings become numbers, everything else
// passes through. Numbers always normalize to float64, matching what JSON
// decoding produces.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		switch strings.ToLower(val) {
		case "true", "on", "active":
			return true
		case "false", "off", "inactive":
			return false
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// NormalizeAttributes returns a copy of attrs with every value normalized.
func NormalizeAttributes(attrs mirror.Attributes) mirror.Attributes {
	out := make(mirror.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = NormalizeValue(v)
	}
	return out
}
