package types

import (
	"fmt"
	"strings"
)

// Safe, type-aware extraction from Fact.Args values and query bindings.
// Values can be any of the Go types produced by the Mangle constant
// conversion in the graph engine: string, MangleAtom, int64, float64, bool.

// ExtractString extracts a string representation from a fact argument.
// Handles string and MangleAtom, and falls back to fmt for other types.
func ExtractString(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return v
	case MangleAtom:
		return string(v)
	case int64:
		return fmt.Sprintf("%d", v)
	case int:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "/true"
		}
		return "/false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExtractBool extracts a boolean value from a fact argument.
// Handles bool directly and the MangleAtom/string "/true"/"/false" convention.
// Returns (value, true) on success, (false, false) if the type is incompatible.
func ExtractBool(arg interface{}) (bool, bool) {
	switch v := arg.(type) {
	case bool:
		return v, true
	case MangleAtom:
		switch string(v) {
		case "/true":
			return true, true
		case "/false":
			return false, true
		}
		return false, false
	case string:
		if v == "/true" || v == "true" {
			return true, true
		}
		if v == "/false" || v == "false" {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// ArgString extracts a string from fact.Args[i] with bounds checking.
// Returns "" if the index is out of range.
func ArgString(f Fact, i int) string {
	if i < 0 || i >= len(f.Args) {
		return ""
	}
	return ExtractString(f.Args[i])
}

// StripAtomPrefix strips the leading "/" from a Mangle atom name.
func StripAtomPrefix(s string) string {
	return strings.TrimPrefix(s, "/")
}
