package breach

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrValidation marks a backend response that parsed but broke the schema.
var ErrValidation = errors.New("validation failed")

// ValidationError describes the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Summary length bounds, in characters.
const (
	MinSummaryLength = 50
	MaxSummaryLength = 500
)

// SummaryBounds holds the accepted summary length range.
type SummaryBounds struct {
	Min int
	Max int
}

// DefaultSummaryBounds returns the 50..500 range.
func DefaultSummaryBounds() SummaryBounds {
	return SummaryBounds{Min: MinSummaryLength, Max: MaxSummaryLength}
}

// ValidateConfidence checks a confidence score is a finite value in [0,1].
func ValidateConfidence(field string, c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return invalid(field, fmt.Sprintf("%v outside [0,1]", c))
	}
	return nil
}

// Validate checks the classification invariants.
func (c *Classification) Validate() error {
	return ValidateConfidence("confidence", c.Confidence)
}

// NormalizeSummary enforces the summary bounds. Summaries that are too short
// are rejected; summaries that are too long are cut, at a word boundary when
// that keeps them at or above the minimum.
func NormalizeSummary(s string, b SummaryBounds) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	if n < b.Min {
		return "", invalid("summary", fmt.Sprintf("%d characters, minimum is %d", n, b.Min))
	}
	if n <= b.Max {
		return s, nil
	}
	s = truncate(s, b)
	if n := utf8.RuneCountInString(s); n < b.Min {
		return "", invalid("summary", fmt.Sprintf("%d characters after truncation, minimum is %d", n, b.Min))
	}
	return s, nil
}

const ellipsis = "..."

func truncate(s string, b SummaryBounds) string {
	runes := []rune(s)
	if b.Max <= 0 {
		return ""
	}
	cut := b.Max - len(ellipsis)
	if cut < 1 {
		return string(runes[:b.Max])
	}
	head := string(runes[:cut])
	if i := strings.LastIndex(head, " "); i > 0 {
		word := strings.TrimRight(head[:i], " ,;:.")
		if utf8.RuneCountInString(word)+len(ellipsis) >= b.Min {
			return word + ellipsis
		}
	}
	return head + ellipsis
}

var (
	cvePattern   = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)
	mitrePattern = regexp.MustCompile(`^T\d{4}(\.\d{3})?$`)
)

// FilterCVEs upper-cases, drops malformed ids and duplicates, keeping order.
func FilterCVEs(ids []string) []string {
	return filterIDs(ids, cvePattern)
}

// FilterTechniques does the same for MITRE ATT&CK technique ids.
func FilterTechniques(ids []string) []string {
	return filterIDs(ids, mitrePattern)
}

func filterIDs(ids []string, pattern *regexp.Regexp) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if !pattern.MatchString(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeSet trims entries and removes case-insensitive duplicates.
func NormalizeSet(items []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ValidateRecordsAffected accepts only non-negative whole numbers.
func ValidateRecordsAffected(v *float64) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, invalid("records_affected", fmt.Sprintf("%v is not an integer", f))
	}
	if f < 0 {
		return nil, invalid("records_affected", fmt.Sprintf("%v is negative", f))
	}
	if f > math.MaxInt64/2 {
		return nil, invalid("records_affected", fmt.Sprintf("%v is out of range", f))
	}
	n := int64(f)
	return &n, nil
}

// OptionalText trims a backend string, mapping empty and "null" to nil.
func OptionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "null", "none", "n/a", "unknown":
		return nil
	}
	return &v
}

// Validate checks an update decision against the candidate window it was
// made for. An update must point at a breach inside the window.
func (d *UpdateDecision) Validate(window []Stored) error {
	if err := ValidateConfidence("confidence", d.Confidence); err != nil {
		return err
	}
	if !d.IsUpdate {
		return nil
	}
	if d.RelatedBreachID == nil {
		return invalid("related_breach_id", "required when is_update is true")
	}
	if !InWindow(*d.RelatedBreachID, window) {
		return invalid("related_breach_id", fmt.Sprintf("%s is not in the candidate window", d.RelatedBreachID))
	}
	return nil
}

// InWindow reports whether id belongs to one of the window's breaches.
func InWindow(id uuid.UUID, window []Stored) bool {
	for _, s := range window {
		if s.ID == id {
			return true
		}
	}
	return false
}
