package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DateFormat = "02.01.2006"

var (
	currencySymbols = []string{"₸", "тг", "руб", "₽", "$", "€"}
	thousandsRe     = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
)

// ParseAmount parses a money amount from user input. Handles
// "500000", "500 000", "500,000.50", "45 000 ₸". Returns false for
// anything that is not a non-negative number.
func ParseAmount(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	// Commas grouping digits in threes are thousands separators
	// ("500,000"); a lone comma is a decimal point ("1500,50").
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}

// ParseDate parses DD.MM.YYYY, DD/MM/YYYY, or YYYY-MM-DD into a UTC time.
func ParseDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	for _, layout := range []string{DateFormat, "02/01/2006", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date as DD.MM.YYYY, or "—" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.Format(DateFormat)
}
