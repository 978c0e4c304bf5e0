package util

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	thousandsDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3}){2,}$`)
	thousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	currencyMarks  = strings.NewReplacer("₹", "", "Rs.", "", "INR", "", " ", "", " ", "")
)

// ParseAmount reads a monetary value that may arrive as a JSON number or as
// text such as "1,25,000.50" or "₹ 1200". ok is false for anything else.
func ParseAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		norm := normalizeNumericToken(t)
		if norm == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(norm, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func normalizeNumericToken(token string) string {
	compact := currencyMarks.Replace(strings.TrimSpace(token))
	negative := false
	if strings.HasPrefix(compact, "(") && strings.HasSuffix(compact, ")") {
		negative = true
		compact = strings.Trim(compact, "()")
	}
	if strings.HasPrefix(compact, "-") {
		negative = !negative
		compact = strings.TrimPrefix(compact, "-")
	}

	// A single dot is always a decimal point; "1.250" is 1.25.
	switch {
	case thousandsDot.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
	case thousandsComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ",") && !strings.Contains(compact, "."):
		compact = strings.ReplaceAll(compact, ",", ".")
	default:
		// Indian grouping such as 1,25,000.50
		if strings.Count(compact, ",") > 1 {
			compact = strings.ReplaceAll(compact, ",", "")
		}
	}

	if negative && compact != "" {
		return "-" + compact
	}
	return compact
}
