package fields

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Matcher finds the first value for one field in a text.
type Matcher interface {
	FindFirst(text string) (string, bool)
}

// RegexMatcher returns the capture named "value", or group 1 when there is no such name.
type RegexMatcher struct {
	re    *regexp.Regexp
	group int
}

func NewRegexMatcher(expr string) (*RegexMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	return &RegexMatcher{re: re, group: valueGroup(re)}, nil
}

func MustRegexMatcher(expr string) *RegexMatcher {
	m, err := NewRegexMatcher(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *RegexMatcher) FindFirst(text string) (string, bool) {
	loc := m.re.FindStringSubmatchIndex(text)
	return capture(text, loc, m.group)
}

// ValidatedMatcher scans regex candidates left to right and returns the first one
// the validator accepts. The validator sees the whole text and the candidate's
// submatch offsets, so it can check the surroundings as well as the groups.
type ValidatedMatcher struct {
	re       *regexp.Regexp
	group    int
	validate func(text string, loc []int) bool
}

func NewValidatedMatcher(expr string, validate func(text string, loc []int) bool) (*ValidatedMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	return &ValidatedMatcher{re: re, group: valueGroup(re), validate: validate}, nil
}

func (m *ValidatedMatcher) FindFirst(text string) (string, bool) {
	for pos := 0; pos <= len(text); {
		loc := m.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return "", false
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		if m.validate(text, loc) {
			return capture(text, loc, m.group)
		}
		// retry one rune past the rejected candidate's start
		_, size := utf8.DecodeRuneInString(text[loc[0]:])
		if size == 0 {
			size = 1
		}
		pos = loc[0] + size
	}
	return "", false
}

func valueGroup(re *regexp.Regexp) int {
	if i := re.SubexpIndex("value"); i > 0 {
		return i
	}
	if re.NumSubexp() >= 1 {
		return 1
	}
	return 0
}

func capture(text string, loc []int, group int) (string, bool) {
	if loc == nil || 2*group+1 >= len(loc) || loc[2*group] < 0 {
		return "", false
	}
	return text[loc[2*group]:loc[2*group+1]], true
}
