package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var freeWords = []string{"free", "tasuta", "bezmaksas", "par velti", "даром", "бесплатно"}

var negotiableWords = []string{"kokkuleppel", "negotiable", "pēc vienošanās", "договорная"}

// ParsePrice turns marketplace price text into a number. Free items parse to 0,
// anything without a usable number (including "negotiable") to +Inf.
// Only the first numeric token counts, so a sale price printed before the
// crossed-out original wins: "120 €150 €" is 120.
func ParsePrice(text string) float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return math.Inf(1)
	}
	for _, w := range freeWords {
		if strings.Contains(lower, w) {
			return 0
		}
	}
	for _, w := range negotiableWords {
		if strings.Contains(lower, w) {
			return math.Inf(1)
		}
	}

	token := firstNumber(lower)
	if token == "" {
		return math.Inf(1)
	}
	v, err := strconv.ParseFloat(normalizeNumber(token), 64)
	if err != nil || v < 0 {
		return math.Inf(1)
	}
	return v
}

// firstNumber returns the first run of digits, allowing "." and "," as
// separators and single spaces before three-digit thousand groups ("1 200").
func firstNumber(s string) string {
	rs := []rune(s)
	start := -1
	for i, r := range rs {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var b strings.Builder
	i := start
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			i++
		case (r == '.' || r == ',') && i+1 < len(rs) && unicode.IsDigit(rs[i+1]):
			b.WriteRune(r)
			i++
		case (r == ' ' || r == '\u00a0') && thousandGroupAt(rs, i+1):
			i++
		default:
			return b.String()
		}
	}
	return b.String()
}

func thousandGroupAt(rs []rune, i int) bool {
	if i+3 > len(rs) {
		return false
	}
	for _, r := range rs[i : i+3] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return i+3 == len(rs) || !unicode.IsDigit(rs[i+3])
}

// normalizeNumber resolves "." and "," into a Go float literal. A separator
// followed by exactly three digits is a thousands mark; the last separator
// otherwise is the decimal point.
func normalizeNumber(tok string) string {
	lastSep := strings.LastIndexAny(tok, ".,")
	if lastSep < 0 {
		return tok
	}
	if len(tok)-lastSep-1 == 3 {
		return strings.NewReplacer(".", "", ",", "").Replace(tok)
	}
	intPart := strings.NewReplacer(".", "", ",", "").Replace(tok[:lastSep])
	return intPart + "." + tok[lastSep+1:]
}

var euroPrice = regexp.MustCompile(`(\d{1,3}(?:[ \x{00a0}]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?)\s*€`)

// FirstEuroPrice keeps only the active price of a card like "120 €150 €",
// returning "120 €". Space-grouped thousands stay whole: "1 200 €900 €" is
// "1 200 €". Text without a euro amount is returned trimmed.
func FirstEuroPrice(text string) string {
	text = strings.TrimSpace(text)
	if m := euroPrice.FindStringSubmatch(text); m != nil {
		return m[1] + " €"
	}
	return text
}
