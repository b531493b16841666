package fields

import (
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"
)

// dateCandidate matches D/M/Y shapes; separator consistency, digit adjacency and
// calendar validity are checked in validDate.
const dateCandidate = `(?P<value>(\d{1,2})([./])(\d{1,2})([./])(\d{4}|\d{2}))`

// NewDateMatcher matches DD/MM/YYYY, DD.MM.YYYY, DD/MM/YY and DD.MM.YY dates
// (day and month may be one digit) that exist in the Gregorian calendar.
// Two-digit years are read as 20YY.
func NewDateMatcher() *ValidatedMatcher {
	m, err := NewValidatedMatcher(dateCandidate, validDate)
	if err != nil {
		panic(err)
	}
	return m
}

// loc groups: 1 value, 2 day, 3 sep, 4 month, 5 sep, 6 year.
func validDate(text string, loc []int) bool {
	group := func(i int) string { return text[loc[2*i]:loc[2*i+1]] }

	if group(3) != group(5) {
		return false
	}
	if r, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); loc[0] > 0 && unicode.IsDigit(r) {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(text[loc[1]:]); loc[1] < len(text) && unicode.IsDigit(r) {
		return false
	}

	day, _ := strconv.Atoi(group(2))
	month, _ := strconv.Atoi(group(4))
	year, _ := strconv.Atoi(group(6))
	if len(group(6)) == 2 {
		year += 2000
	}
	return ValidDay(year, month, day)
}

// ValidDay reports whether day exists in month of year.
func ValidDay(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month
}
