package breach

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// defaultDay is used when only the month of an event is known.
const defaultDay = 15

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const (
	monthFull = `January|February|March|April|May|June|July|August|September|October|November|December`
	monthAny  = monthFull + `|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`
)

var (
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayYearRe = regexp.MustCompile(`(?i)\b(` + monthAny + `)\.? (\d{1,2})(?:st|nd|rd|th)?,? (\d{4})\b`)
	dayMonthYearRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)? (?:of )?(` + monthAny + `)\.?,? (\d{4})\b`)
	monthYearRe    = regexp.MustCompile(`(?i)\b(` + monthAny + `)\.?,? (\d{4})\b`)
	// Month-only mentions must be capitalised full names, and "May" needs a
	// preposition in front so the modal verb does not count.
	monthOnlyRe = regexp.MustCompile(`\b(?:((?i:in|during|since|until|by|from|early|mid|late|last|this|on))[ -])?(` + monthFull + `)\b`)
	agoRe       = regexp.MustCompile(`(?i)\b(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|twelve) (day|week|month|year)s? ago\b`)
	relativeRe  = regexp.MustCompile(`(?i)\b(yesterday|today|earlier this week|last week|earlier this month|this month|last month|earlier this year|last year)\b`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "twelve": 12,
}

// ParseISODate strictly parses a YYYY-MM-DD calendar date.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("discovery_date", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}
	return t, nil
}

// ResolveDiscoveryDate finds the breach date referenced in free text,
// relative to today. The rules are tried in order:
//
//  1. an exact date is used as stated;
//  2. month and year default to the 15th;
//  3. a bare month assumes today's year and the 15th;
//  4. relative expressions are computed from today;
//  5. otherwise there is no date and nil is returned.
func ResolveDiscoveryDate(text string, today time.Time) *time.Time {
	today = dateOnly(today)
	for _, rule := range []func(string, time.Time) (time.Time, bool){
		exactDate, monthAndYear, monthOnly, relativeDate,
	} {
		if d, ok := rule(text, today); ok {
			return &d
		}
	}
	return nil
}

func exactDate(text string, today time.Time) (time.Time, bool) {
	if m := isoDateRe.FindString(text); m != "" {
		if d, err := time.Parse(DateLayout, m); err == nil && plausibleYear(d.Year(), today) {
			return d, true
		}
	}
	if m := monthDayYearRe.FindStringSubmatch(text); m != nil {
		if d, ok := parseParts(m[0], m[1], m[2], m[3], today); ok {
			return d, true
		}
	}
	if m := dayMonthYearRe.FindStringSubmatch(text); m != nil {
		if d, ok := parseParts(m[0], m[2], m[1], m[3], today); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseParts hands the matched phrase to dateparse and falls back to the
// captured components. An impossible day such as February 30 keeps only the
// month and year.
func parseParts(phrase, month, day, year string, today time.Time) (time.Time, bool) {
	mon, ok := monthNames[strings.ToLower(month)]
	if !ok {
		return time.Time{}, false
	}
	dd, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	yy, err := strconv.Atoi(year)
	if err != nil || !plausibleYear(yy, today) {
		return time.Time{}, false
	}
	want := time.Date(yy, mon, dd, 0, 0, 0, 0, time.UTC)
	if want.Day() != dd || want.Month() != mon {
		return time.Date(yy, mon, defaultDay, 0, 0, 0, 0, time.UTC), true
	}
	if parsed, err := dateparse.ParseIn(stripOrdinal(phrase), time.UTC); err == nil {
		parsed = dateOnly(parsed)
		if parsed.Equal(want) {
			return parsed, true
		}
	}
	return want, true
}

var ordinalRe = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)

func stripOrdinal(s string) string {
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, " of ", " ")
	return strings.ReplaceAll(s, ".", "")
}

func monthAndYear(text string, today time.Time) (time.Time, bool) {
	m := monthYearRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	mon := monthNames[strings.ToLower(m[1])]
	yy, err := strconv.Atoi(m[2])
	if err != nil || !plausibleYear(yy, today) {
		return time.Time{}, false
	}
	return time.Date(yy, mon, defaultDay, 0, 0, 0, 0, time.UTC), true
}

// monthOnly places a bare month in today's year. "last <Month>" is relative
// and means the latest occurrence before the current month; "since" and
// "this" never point past today and fall back to the previous year.
func monthOnly(text string, today time.Time) (time.Time, bool) {
	for _, m := range monthOnlyRe.FindAllStringSubmatch(text, -1) {
		prefix, name := strings.ToLower(m[1]), m[2]
		if name == "May" && prefix == "" {
			continue
		}
		mon := monthNames[strings.ToLower(name)]
		d := time.Date(today.Year(), mon, defaultDay, 0, 0, 0, 0, time.UTC)
		switch prefix {
		case "last":
			if mon >= today.Month() {
				d = d.AddDate(-1, 0, 0)
			}
		case "since", "this":
			if d.After(today) {
				d = d.AddDate(-1, 0, 0)
			}
		}
		return d, true
	}
	return time.Time{}, false
}

func relativeDate(text string, today time.Time) (time.Time, bool) {
	if m := agoRe.FindStringSubmatch(text); m != nil {
		n, ok := numberWords[strings.ToLower(m[1])]
		if !ok {
			var err error
			if n, err = strconv.Atoi(m[1]); err != nil {
				return time.Time{}, false
			}
		}
		switch strings.ToLower(m[2]) {
		case "day":
			return today.AddDate(0, 0, -n), true
		case "week":
			return today.AddDate(0, 0, -7*n), true
		case "month":
			return monthsBack(today, n), true
		case "year":
			return today.AddDate(-n, 0, 0), true
		}
	}
	m := relativeRe.FindString(text)
	switch strings.ToLower(m) {
	case "today":
		return today, true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "earlier this week":
		sinceMonday := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -sinceMonday), true
	case "last week":
		return today.AddDate(0, 0, -7), true
	case "this month", "earlier this month":
		return notAfter(monthsBack(today, 0), today), true
	case "last month":
		return monthsBack(today, 1), true
	case "earlier this year":
		return notAfter(time.Date(today.Year(), time.January, defaultDay, 0, 0, 0, 0, time.UTC), today), true
	case "last year":
		return today.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

// monthsBack steps back n calendar months and lands on the default day.
func monthsBack(today time.Time, n int) time.Time {
	return time.Date(today.Year(), today.Month()-time.Month(n), defaultDay, 0, 0, 0, 0, time.UTC)
}

func notAfter(d, today time.Time) time.Time {
	if d.After(today) {
		return today
	}
	return d
}

func plausibleYear(y int, today time.Time) bool {
	return y >= 1990 && y <= today.Year()+1
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
