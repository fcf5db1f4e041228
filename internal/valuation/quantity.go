package valuation

import (
	"regexp"
	"strconv"
	"strings"
)

const maxTitleQuantity = 600

// Quantity patterns in precedence order; the first family that yields an acceptable
// count wins.
var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\blot\s+of\s+(\d{1,3})\b`),
	regexp.MustCompile(`\broll\s+of\s+(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})\s+coins?\b`),
	regexp.MustCompile(`\b(\d{1,3})\s+pieces?\b`),
	regexp.MustCompile(`\((\d{1,3})\)`),
	regexp.MustCompile(`\b(\d{1,3})\s*x\b`),
	regexp.MustCompile(`\bx\s*(\d{1,3})\b`),
	regexp.MustCompile(`\bqty[:\s]*(\d{1,3})\b`),
	regexp.MustCompile(`\b(\d{1,3})\s*pcs\b`),
}

// QuantityFromTitle extracts an explicit multiplicity from title, defaulting to 1.
func QuantityFromTitle(title string) int {
	t := strings.ToLower(title)
	if t == "" {
		return 1
	}
	for _, p := range quantityPatterns {
		for _, loc := range p.FindAllStringSubmatchIndex(t, -1) {
			start, end := loc[2], loc[3]
			if partOfDecimal(t, start, end) {
				continue
			}
			n, err := strconv.Atoi(t[start:end])
			if err != nil {
				continue
			}
			if n > 1 && n <= maxTitleQuantity {
				return n
			}
		}
	}
	return 1
}

// partOfDecimal rejects digits such as the "5" in "1.5x" or the "1" in "1.5 coins".
func partOfDecimal(s string, start, end int) bool {
	if start > 0 && s[start-1] == '.' {
		return true
	}
	return end < len(s) && s[end] == '.'
}
