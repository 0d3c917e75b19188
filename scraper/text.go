package scraper

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate cuts s to max runes, preferring a word boundary past minKeep of the
// limit, and marks the cut with "...".
func Truncate(s string, max int, minKeep float64) string {
	rs := []rune(s)
	if max <= 0 || len(rs) <= max {
		return s
	}
	cut := string(rs[:max])
	if sp := strings.LastIndex(cut, " "); sp > 0 && float64(utf8.RuneCountInString(cut[:sp])) > float64(max)*minKeep {
		return strings.TrimSpace(cut[:sp]) + "..."
	}
	return strings.TrimSpace(cut) + "..."
}

// SplitConcatenated drops a breadcrumb glued to the title with no space,
// cutting at a lowercase or digit to uppercase+lowercase boundary:
// "iPhone 16Jauns 16, Garantija" becomes "Jauns 16, Garantija". After a letter
// the boundary needs four lowercase letters before it, so brand casing like
// "iPhone" or "MacBook" is left alone.
func SplitConcatenated(s string) string {
	rs := []rune(s)
	for i := 1; i+1 < len(rs); i++ {
		prev, cur, next := rs[i-1], rs[i], rs[i+1]
		if !unicode.IsUpper(cur) || !unicode.IsLower(next) {
			continue
		}
		if unicode.IsDigit(prev) || lowerRun(rs[:i]) >= 4 {
			return strings.TrimSpace(string(rs[i:]))
		}
	}
	return s
}

func lowerRun(rs []rune) int {
	n := 0
	for i := len(rs) - 1; i >= 0 && unicode.IsLower(rs[i]); i-- {
		n++
	}
	return n
}

var categoryPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(Electronics|Phones|Mobile phones|Apple|Samsung|iPhone|iPad|MacBook|Laptop|Computer|Car|Auto|Furniture|Clothing|Shoes)\s*:\s*`),
	regexp.MustCompile(`(?i)^(Elektronika|Telefoni|Mobilie telefoni|Dators|Auto|Mēbeles|Apģērbs|Apavi)\s*:\s*`),
	regexp.MustCompile(`(?i)^(Электроника|Телефоны|Мобильные телефоны|Компьютер|Авто|Мебель|Одежда|Обувь)\s*:\s*`),
}

// CleanTitle strips breadcrumbs (" : ", " / " and glued-on ones) and category
// prefixes, collapses whitespace, and bounds the length.
func CleanTitle(title string, max int) string {
	cleaned := strings.TrimSpace(title)
	for _, sep := range []string{" : ", " / "} {
		if strings.Contains(cleaned, sep) {
			parts := strings.Split(cleaned, sep)
			cleaned = strings.TrimSpace(parts[len(parts)-1])
		}
	}
	cleaned = SplitConcatenated(cleaned)
	for _, re := range categoryPrefixes {
		cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
	}
	return Truncate(CollapseSpace(cleaned), max, 0.6)
}

var structuredLine = regexp.MustCompile(`(?i)^(Brand|Model|Condition|Price|Date|Location|Type|Category|Size|Color|Material|Marka|Modelis|Stāvoklis|Cena|Izmērs|Krāsa)\s*:`)

// DescriptionPreview returns the first real sentence-bearing line of a
// description: not a "Key: value" field, at least 20 characters, at most 150.
// When every free-text line is short (text broken over many lines), the
// lines are joined and the first sentence of the result is used instead.
func DescriptionPreview(description string) string {
	var free []string
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || structuredLine.MatchString(line) {
			continue
		}
		if utf8.RuneCountInString(line) < 20 {
			free = append(free, line)
			continue
		}
		return Truncate(CollapseSpace(line), 150, 0.66)
	}

	joined := strings.Join(free, " ")
	if utf8.RuneCountInString(joined) < 20 {
		return ""
	}
	return ExtractFirstSentence(joined, 150)
}

var (
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
	sentenceEnd    = regexp.MustCompile(`[.!?](\s|$)`)
	abbreviations  = []string{"Dr", "Mr", "Mrs", "Ms", "Ltd", "Inc", "etc", "approx", "vs"}
	minSentenceLen = 20
)

// ExtractFirstSentence returns the first sentence of text when it fits in
// maxLen and is long enough to mean something, else a word-bounded cut.
func ExtractFirstSentence(text string, maxLen int) string {
	cleaned := CollapseSpace(htmlTag.ReplaceAllString(text, ""))
	if cleaned == "" || utf8.RuneCountInString(cleaned) <= maxLen {
		return cleaned
	}

	for _, loc := range sentenceEnd.FindAllStringIndex(cleaned, -1) {
		end := loc[0] + 1
		if utf8.RuneCountInString(cleaned[:end]) > maxLen {
			break
		}
		if cleaned[loc[0]] == '.' && endsWithAbbreviation(cleaned[:loc[0]]) {
			continue
		}
		if s := strings.TrimSpace(cleaned[:end]); utf8.RuneCountInString(s) >= minSentenceLen {
			return s
		}
	}
	return Truncate(cleaned, maxLen, 0.7)
}

func endsWithAbbreviation(s string) bool {
	for _, a := range abbreviations {
		if strings.HasSuffix(s, a) {
			return true
		}
	}
	return false
}
