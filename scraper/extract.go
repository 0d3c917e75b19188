package scraper

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Candidate reads one possible value out of a document.
type Candidate func(doc *goquery.Selection) string

// Text takes the trimmed, whitespace-collapsed text of the first match.
func Text(selector string) Candidate {
	return func(doc *goquery.Selection) string {
		return CollapseSpace(doc.Find(selector).First().Text())
	}
}

// Attr takes an attribute of the first match.
func Attr(selector, name string) Candidate {
	return func(doc *goquery.Selection) string {
		v, _ := doc.Find(selector).First().Attr(name)
		return strings.TrimSpace(v)
	}
}

// Meta reads <meta property=... content=...>, e.g. Meta("og:title").
func Meta(property string) Candidate {
	return Attr(`meta[property="`+property+`"]`, "content")
}

// Labeled finds the value cell next to the first label cell whose text is one
// of labels (compared without a trailing colon).
func Labeled(labelSel, valueSel string, labels ...string) Candidate {
	return func(doc *goquery.Selection) string {
		var out string
		doc.Find(labelSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			key := strings.TrimSuffix(CollapseSpace(s.Text()), ":")
			for _, l := range labels {
				if strings.EqualFold(key, l) {
					out = CollapseSpace(s.NextFiltered(valueSel).Text())
					return false
				}
			}
			return true
		})
		return out
	}
}

// First returns the first candidate value that is non-empty and at most
// maxLen runes long (maxLen <= 0 means unbounded).
func First(doc *goquery.Selection, maxLen int, candidates ...Candidate) string {
	for _, c := range candidates {
		v := c(doc)
		if v == "" {
			continue
		}
		if maxLen > 0 && utf8.RuneCountInString(v) > maxLen {
			continue
		}
		return v
	}
	return ""
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Absolute resolves href against base and drops tracking query strings when strip is set.
func Absolute(base, href string, strip bool) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(ref)
	if strip {
		u.RawQuery = ""
	}
	u.Fragment = ""
	return u.String()
}

// Images collects unique absolute image URLs matched by selector, up to limit.
func Images(doc *goquery.Selection, base, selector string, limit int, attrs ...string) []string {
	if len(attrs) == 0 {
		attrs = []string{"src", "data-src"}
	}
	seen := make(map[string]bool)
	var out []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, a := range attrs {
			v, ok := s.Attr(a)
			if !ok || strings.TrimSpace(v) == "" || strings.HasPrefix(v, "data:") {
				continue
			}
			u := Absolute(base, v, false)
			if u != "" && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
			break
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}
