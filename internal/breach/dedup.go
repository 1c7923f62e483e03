package breach

import (
	"strings"
	"time"
	"unicode"
)

var corporateSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {}, "co": {}, "company": {},
	"ltd": {}, "limited": {}, "llc": {}, "plc": {}, "gmbh": {}, "ag": {}, "sa": {}, "nv": {},
	"bv": {}, "group": {}, "holdings": {},
}

// NormalizeCompany lower-cases a company name, strips punctuation and
// trailing corporate suffixes so "Acme, Inc." and "ACME" compare equal.
func NormalizeCompany(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(fields) > 1 {
		if _, ok := corporateSuffixes[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// DedupKey identifies a real-world incident: the normalized company plus the
// discovery month. Records missing either part have no key and are never
// merged.
func DedupKey(company *string, discovered *time.Time) string {
	if company == nil || discovered == nil {
		return ""
	}
	c := NormalizeCompany(*company)
	if c == "" {
		return ""
	}
	return c + "|" + discovered.Format("2006-01")
}
