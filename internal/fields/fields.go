// Package fields mines the sum, num and date fields from normalized document text.
package fields

import (
	"github.com/springcomet/kabalot/constants"
)

const (
	// Amount after a total marker: לתשלום, סה"כ (ASCII or gershayim quote) or סך הכל,
	// an optional colon and shekel sign, thousands separators, up to two decimals.
	sumPattern = `(?:לתשלום|סה["״]כ|סך\s+הכל)\s*:?\s*(?:₪\s*)?(?P<value>\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

	// Integer after an invoice or receipt label and a number marker.
	numPattern = `(?:חשבונית(?:\s+מס)?(?:\s*/\s*קבלה)?|קבלה)\s+(?:מספר|מס['׳]?|#)\s*:?\s*(?P<value>\d+)`
)

// Pattern binds a field name to its matcher.
type Pattern struct {
	Name    string
	Matcher Matcher
}

// Set is an ordered list of independent field patterns.
type Set []Pattern

// Result maps every field name of a Set to its raw match or constants.NotAvailable.
type Result map[string]string

// DefaultSet is the compiled-in sum, num, date pattern set.
func DefaultSet() Set {
	return Set{
		{Name: constants.FieldSum, Matcher: MustRegexMatcher(sumPattern)},
		{Name: constants.FieldNum, Matcher: MustRegexMatcher(numPattern)},
		{Name: constants.FieldDate, Matcher: NewDateMatcher()},
	}
}

// Extract runs every pattern once over text. Matches are raw substrings.
func (s Set) Extract(text string) Result {
	out := make(Result, len(s))
	for _, p := range s {
		if v, ok := p.Matcher.FindFirst(text); ok {
			out[p.Name] = v
		} else {
			out[p.Name] = constants.NotAvailable
		}
	}
	return out
}

// Get returns the value for name, or constants.NotAvailable when the field is missing.
func (r Result) Get(name string) string {
	if v, ok := r[name]; ok {
		return v
	}
	return constants.NotAvailable
}
