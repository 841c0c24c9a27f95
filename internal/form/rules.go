package form

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mesh-intelligence/courtside/internal/coerce"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// now is the clock used by FutureDate and PastDate. Tests replace it.
var now = time.Now

// Default rule messages.
const (
	MsgRequired   = "This field is required"
	MsgEmail      = "Please enter a valid email address"
	MsgNumeric    = "Must be a number"
	MsgInteger    = "Must be a whole number"
	MsgPositive   = "Must be a positive number"
	MsgURL        = "Please enter a valid URL"
	MsgDate       = "Please enter a valid date"
	MsgFutureDate = "Date must be in the future"
	MsgPastDate   = "Date must be in the past"
	MsgInvalid    = "Invalid value"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// dateLayouts are tried in order when parsing date values.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Required fails on nil, blank strings, empty collections and an unchecked
// checkbox.
func Required(msg ...string) Rule {
	m := message(msg, MsgRequired)
	return func(value any, _ types.Values) string {
		if b, ok := value.(bool); ok && !b {
			return m
		}
		if isBlank(value) {
			return m
		}
		return ""
	}
}

// Email checks for a plausible address of the form local@domain.tld.
func Email(msg ...string) Rule {
	m := message(msg, MsgEmail)
	return optional(func(value any) bool {
		return emailPattern.MatchString(strings.TrimSpace(coerce.String(value)))
	}, m)
}

// MinLength requires at least n characters.
func MinLength(n int, msg ...string) Rule {
	m := message(msg, fmt.Sprintf("Must be at least %d characters", n))
	return optional(func(value any) bool {
		return utf8.RuneCountInString(coerce.String(value)) >= n
	}, m)
}

// MaxLength allows at most n characters.
func MaxLength(n int, msg ...string) Rule {
	m := message(msg, fmt.Sprintf("Must be no more than %d characters", n))
	return optional(func(value any) bool {
		return utf8.RuneCountInString(coerce.String(value)) <= n
	}, m)
}

// Min requires a numeric value of at least limit. Non-numeric values are left
// to Numeric.
func Min(limit float64, msg ...string) Rule {
	m := message(msg, "Must be at least "+formatNumber(limit))
	return optional(func(value any) bool {
		n, ok := coerce.ParseNumber(value)
		return !ok || n >= limit
	}, m)
}

// Max requires a numeric value of at most limit. Non-numeric values are left to
// Numeric.
func Max(limit float64, msg ...string) Rule {
	m := message(msg, "Must be no more than "+formatNumber(limit))
	return optional(func(value any) bool {
		n, ok := coerce.ParseNumber(value)
		return !ok || n <= limit
	}, m)
}

// Pattern requires the string form of the value to match re.
func Pattern(re *regexp.Regexp, msg string) Rule {
	return optional(func(value any) bool {
		return re.MatchString(coerce.String(value))
	}, message([]string{msg}, MsgInvalid))
}

// Numeric requires a number or a numeric string.
func Numeric(msg ...string) Rule {
	m := message(msg, MsgNumeric)
	return optional(func(value any) bool {
		_, ok := coerce.ParseNumber(value)
		return ok
	}, m)
}

// Integer requires a whole number.
func Integer(msg ...string) Rule {
	m := message(msg, MsgInteger)
	return optional(func(value any) bool {
		n, ok := coerce.ParseNumber(value)
		return ok && n == float64(int64(n))
	}, m)
}

// Positive requires a number greater than zero.
func Positive(msg ...string) Rule {
	m := message(msg, MsgPositive)
	return optional(func(value any) bool {
		n, ok := coerce.ParseNumber(value)
		return ok && n > 0
	}, m)
}

// URL requires an absolute http or https URL.
func URL(msg ...string) Rule {
	m := message(msg, MsgURL)
	return optional(func(value any) bool {
		u, err := url.ParseRequestURI(strings.TrimSpace(coerce.String(value)))
		if err != nil {
			return false
		}
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}, m)
}

// Date requires a parseable date.
func Date(msg ...string) Rule {
	m := message(msg, MsgDate)
	return optional(func(value any) bool {
		_, ok := toTime(value)
		return ok
	}, m)
}

// FutureDate requires a date after now. Unparseable values are left to Date.
func FutureDate(msg ...string) Rule {
	m := message(msg, MsgFutureDate)
	return optional(func(value any) bool {
		t, ok := toTime(value)
		return !ok || t.After(now())
	}, m)
}

// PastDate requires a date before now. Unparseable values are left to Date.
func PastDate(msg ...string) Rule {
	m := message(msg, MsgPastDate)
	return optional(func(value any) bool {
		t, ok := toTime(value)
		return !ok || t.Before(now())
	}, m)
}

// Matches requires the value to equal the value of another field, as used
// for password confirmation. label names the other field in the message.
func Matches(field, label string, msg ...string) Rule {
	if label == "" {
		label = field
	}
	m := message(msg, "Must match "+label)
	return func(value any, values types.Values) string {
		if coerce.String(value) != coerce.String(values[field]) {
			return m
		}
		return ""
	}
}

// Custom wraps an arbitrary predicate. The predicate sees every value,
// including empty ones.
func Custom(pred func(value any, values types.Values) bool, msg string) Rule {
	m := message([]string{msg}, MsgInvalid)
	return func(value any, values types.Values) (out string) {
		defer func() {
			if recover() != nil {
				out = m
			}
		}()
		if pred(value, values) {
			return ""
		}
		return m
	}
}

// optional builds a rule that passes blank values and otherwise applies ok.
func optional(ok func(value any) bool, msg string) Rule {
	return func(value any, _ types.Values) string {
		if isBlank(value) || ok(value) {
			return ""
		}
		return msg
	}
}

func message(custom []string, fallback string) string {
	if len(custom) > 0 && custom[0] != "" {
		return custom[0]
	}
	return fallback
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	}
	s := strings.TrimSpace(coerce.String(value))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
