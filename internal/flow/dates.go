package flow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CenturyPivot splits two-digit years: values below it land in the 2000s,
// the rest in the 1900s.
const CenturyPivot = 70

type dateMatcher struct {
	name string
	re   *regexp.Regexp
	// indexes of year, month and day submatches
	y, m, d int
}

// dateMatchers are tried in order; the first match wins.
var dateMatchers = []dateMatcher{
	{name: "YYYY-MM-DD", re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), y: 1, m: 2, d: 3},
	{name: "M/D/YYYY", re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), y: 3, m: 1, d: 2},
	{name: "M/D/YY", re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`), y: 3, m: 1, d: 2},
	{name: "M-D-YYYY", re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), y: 3, m: 1, d: 2},
	{name: "M-D-YY", re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2})$`), y: 3, m: 1, d: 2},
	{name: "YYYY/M/D", re: regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`), y: 1, m: 2, d: 3},
}

var timeSuffix = regexp.MustCompile(`[ T]\d{1,2}:\d{2}(:\d{2})?(\.\d+)?$`)

// ParseDate resolves a combined date cell. It reports the matcher that
// accepted the value.
func ParseDate(raw string) (time.Time, string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, "", false
	}
	s = timeSuffix.ReplaceAllString(s, "")

	for _, m := range dateMatchers {
		parts := m.re.FindStringSubmatch(s)
		if parts == nil {
			continue
		}
		year, _ := strconv.Atoi(parts[m.y])
		if len(parts[m.y]) == 2 {
			year = ExpandYear(year)
		}
		month, _ := strconv.Atoi(parts[m.m])
		day, _ := strconv.Atoi(parts[m.d])
		if t, ok := CivilDate(year, month, day); ok {
			return t, m.name, true
		}
		// a matching shape with an impossible calendar value does not fall
		// through to later matchers
		return time.Time{}, m.name, false
	}
	return time.Time{}, "", false
}

// DateFromParts resolves separate month, day and year cells.
func DateFromParts(month, day, year string) (time.Time, bool) {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, false
	}
	ys := strings.TrimSpace(year)
	y, err := strconv.Atoi(ys)
	if err != nil || y < 0 {
		return time.Time{}, false
	}
	switch len(ys) {
	case 1, 2:
		y = ExpandYear(y)
	case 4:
	default:
		return time.Time{}, false
	}
	return CivilDate(y, m, d)
}

// ExpandYear maps a two-digit year through CenturyPivot.
func ExpandYear(yy int) int {
	if yy < CenturyPivot {
		return 2000 + yy
	}
	return 1900 + yy
}

// CivilDate builds a UTC calendar date, rejecting values time.Date would
// normalize (Feb 30, month 13).
func CivilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// AddMonths moves a calendar date by n months, clamping the day to the end
// of the target month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ty := y + total/12
	tm := total % 12
	if tm < 0 {
		tm += 12
		ty--
	}
	last := time.Date(ty, time.Month(tm+2), 0, 0, 0, 0, 0, time.UTC).Day()
	if d > last {
		d = last
	}
	return time.Date(ty, time.Month(tm+1), d, 0, 0, 0, 0, time.UTC)
}
