package normalize

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type datePattern struct {
	name    string
	prefix  *regexp.Regexp
	layouts []string
}

// Checked in order; the first pattern whose prefix matches decides the layouts tried.
var datePatterns = []datePattern{
	{
		name:   "YYYY-MM-DD",
		prefix: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
		layouts: []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04",
			"2006-01-02 15:04",
			time.DateOnly,
		},
	},
	{
		name:    "MM/DD/YYYY",
		prefix:  regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`),
		layouts: []string{"01/02/2006 15:04:05", "01/02/2006"},
	},
	{
		name:    "YYYY/MM/DD",
		prefix:  regexp.MustCompile(`^\d{4}/\d{2}/\d{2}`),
		layouts: []string{"2006/01/02 15:04:05", "2006/01/02"},
	},
	{
		name:    "MM-DD-YYYY",
		prefix:  regexp.MustCompile(`^\d{2}-\d{2}-\d{4}`),
		layouts: []string{"01-02-2006 15:04:05", "01-02-2006"},
	},
}

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][-+]?\d+)?$`)

// Exponents beyond this are out of float64 range whatever the mantissa.
const maxExponent = 1000

// ParseDate parses s against the supported date patterns. Zone-less values are
// read in loc; date-only values are always UTC midnight.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, p := range datePatterns {
		if !p.prefix.MatchString(s) {
			continue
		}
		for _, layout := range p.layouts {
			if isDateLayout(layout) {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts, true
				}
				continue
			}
			if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// DateFormat names the date pattern s starts with.
func DateFormat(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, p := range datePatterns {
		if p.prefix.MatchString(s) {
			return p.name, true
		}
	}
	return "", false
}

func isDateLayout(layout string) bool {
	return !strings.Contains(layout, "15")
}

// ParseNumber converts a decimal string to a float. It refuses strings whose
// numeric form would lose information: leading zeros, a leading plus sign,
// and any value whose shortest float form is not the same decimal number.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numberPattern.MatchString(s) {
		return 0, false
	}

	digits := strings.TrimPrefix(s, "-")
	intPart := digits
	if i := strings.IndexAny(digits, ".eE"); i >= 0 {
		intPart = digits[:i]
	}
	if len(intPart) > 1 && intPart[0] == '0' {
		return 0, false
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return 0, false
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	if !sameDecimal(s, f) {
		return 0, false
	}
	return f, true
}

// sameDecimal reports whether s and the shortest decimal form of f denote
// the same rational number.
func sameDecimal(s string, f float64) bool {
	want, ok := new(big.Rat).SetString(s)
	if !ok {
		return false
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return false
	}
	return want.Cmp(got) == 0
}

// CanonicalName lower-cases a column name and collapses every run of
// characters other than letters and digits into a single underscore.
func CanonicalName(name string) string {
	name = cases.Lower(language.Und).String(norm.NFKC.String(name))

	var b strings.Builder
	underscore := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}

	canonical := strings.Trim(b.String(), "_")
	if canonical == "" {
		return "column"
	}
	return canonical
}
