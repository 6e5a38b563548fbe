package core

import (
	"strconv"
	"strings"
	"time"
)

var monthLayouts = []string{
	"2006-01",
	"2006-01-02",
	"2006/01",
	"01/2006",
	"1/2006",
	"200601",
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"2006-Jan",
}

// period is a parsed month label. year is 0 for bare month numbers.
type period struct {
	year  int
	month int
}

func parsePeriod(label string) (period, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return period{}, false
	}
	if n, err := strconv.Atoi(label); err == nil && len(label) <= 2 {
		if n >= 1 && n <= 12 {
			return period{month: n}, true
		}
		return period{}, false
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return period{year: t.Year(), month: int(t.Month())}, true
		}
	}
	return period{}, false
}

// Month label ranks: dated periods first, then bare month numbers, then
// anything that does not parse (blank included).
const (
	rankDated = iota
	rankMonthOnly
	rankUnparsed
)

func monthSortKey(label string) (rank, value int) {
	p, ok := parsePeriod(label)
	switch {
	case !ok:
		return rankUnparsed, 0
	case p.year == 0:
		return rankMonthOnly, p.month
	default:
		return rankDated, p.year*12 + p.month
	}
}

// CompareMonths is a total order over month labels. Labels of the same kind
// compare chronologically; dated periods sort before bare month numbers,
// which sort before unparseable labels. Ties fall back to the raw text.
func CompareMonths(a, b string) int {
	ra, va := monthSortKey(a)
	rb, vb := monthSortKey(b)
	switch {
	case ra != rb:
		return cmpInt(ra, rb)
	case va != vb:
		return cmpInt(va, vb)
	}
	return strings.Compare(a, b)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}
