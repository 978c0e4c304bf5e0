package util

import (
	"strconv"
	"strings"
	"time"
)

// serialEpoch is day zero of spreadsheet serial dates. It sits two days before
// 1900-01-01 to match the historical off-by-two leap-year convention.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const canonicalDateLayout = "2-Jan-2006"

// ToCanonical turns a serial day count into a "D-Mon-YYYY" string. Strings that
// already carry a date separator, and anything that cannot be converted, are
// returned unchanged.
func ToCanonical(value any) any {
	var days float64
	switch v := value.(type) {
	case nil:
		return value
	case string:
		s := strings.TrimSpace(v)
		if strings.ContainsAny(s, "-/") {
			return value
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value
		}
		days = parsed
	case float64:
		days = v
	case float32:
		days = float64(v)
	case int:
		days = float64(v)
	case int64:
		days = float64(v)
	case int32:
		days = float64(v)
	default:
		return value
	}

	if days != days || days > 2958465 || days < -693593 {
		return value
	}
	return serialEpoch.AddDate(0, 0, int(days)).Format(canonicalDateLayout)
}
