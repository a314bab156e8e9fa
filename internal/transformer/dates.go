package transformer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

// ErrDateFormat is returned for values that match none of the accepted date
// spellings.
var ErrDateFormat = errors.New("unrecognized date format")

var (
	reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// Spreadsheet exports write dates in whatever form the locale prefers.
	// Each entry names which submatch holds year, month and day.
	dateForms = []struct {
		re      *regexp.Regexp
		y, m, d int
	}{
		{regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), 3, 1, 2}, // M/D/YYYY, MM/DD/YYYY
		{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), 3, 1, 2}, // M-D-YYYY
		{regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`), 1, 2, 3}, // YYYY/M/D
		{regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), 1, 2, 3}, // YYYY-M-D
	}

	timeLayouts = []string{
		"15:04:05.999999999",
		"15:04:05",
		"15:04",
		"3:04:05 PM",
		"3:04 PM",
	}
)

// NormalizeDate rewrites s to canonical YYYY-MM-DD. A value already in
// canonical form is returned unchanged. Calendar validity is enforced, so
// 2/30/2025 is an error.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if reISODate.MatchString(s) {
		if _, err := time.Parse(schema.DateLayout, s); err != nil {
			return "", fmt.Errorf("invalid calendar date %q", s)
		}
		return s, nil
	}
	for _, f := range dateForms {
		m := f.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[f.y])
		mo, _ := strconv.Atoi(m[f.m])
		d, _ := strconv.Atoi(m[f.d])
		return canonicalDate(y, mo, d, s)
	}
	return "", fmt.Errorf("%w: %q", ErrDateFormat, s)
}

func canonicalDate(y, m, d int, raw string) (string, error) {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", fmt.Errorf("invalid calendar date %q", raw)
	}
	return t.Format(schema.DateLayout), nil
}

// NormalizeTimestamp rewrites s to "YYYY-MM-DD HH:MM:SS[.fff]". The date part
// follows NormalizeDate; a bare date becomes midnight.
func NormalizeTimestamp(s string) (string, error) {
	s = strings.TrimSpace(s)
	datePart, timePart := s, ""
	if i := strings.IndexAny(s, "T "); i >= 0 {
		datePart, timePart = s[:i], strings.TrimSpace(s[i+1:])
	}
	date, err := NormalizeDate(datePart)
	if err != nil {
		return "", err
	}
	if timePart == "" {
		return date + " 00:00:00", nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(timePart)); err == nil {
			return date + " " + t.Format("15:04:05.999999999"), nil
		}
	}
	return "", fmt.Errorf("unrecognized time of day %q", timePart)
}
