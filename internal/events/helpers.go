package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tracgallery/gallery/internal/types"
)

// Name returns the normalized command name
func (r Request) Name() string {
	return strings.ToLower(strings.TrimSpace(r.Command))
}

// Arg returns the first non-empty argument among keys as a string.
// Aliases are tried in order (e.g. "min_score", "minScore").
func (r Request) Arg(keys ...string) string {
	for _, key := range keys {
		v, ok := r.Args[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			s = strconv.Itoa(val)
		case bool:
			s = strconv.FormatBool(val)
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// IntArg parses the first present argument among keys as an integer.
// Fractional values are truncated. ok is false when no key is present.
// Values outside the int32 range are invalid.
func (r Request) IntArg(keys ...string) (n int, ok bool, err error) {
	for _, key := range keys {
		v, present := r.Args[key]
		if !present || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			if i, ok := truncate(val); ok {
				return i, true, nil
			}
		case int:
			if val >= math.MinInt32 && val <= math.MaxInt32 {
				return val, true, nil
			}
		case string:
			s := strings.TrimSpace(val)
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				if i, ok := truncate(f); ok {
					return i, true, nil
				}
			}
		}
		return 0, false, types.NewInvalidRequest("Invalid --%s parameter.", key)
	}
	return 0, false, nil
}

func truncate(f float64) (int, bool) {
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
