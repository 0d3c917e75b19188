package scraper

import "strings"

// Canonical condition labels.
const (
	ConditionNew      = "New"
	ConditionLikeNew  = "Like New"
	ConditionGood     = "Good"
	ConditionFair     = "Fair"
	ConditionUsed     = "Used"
	ConditionVintage  = "Vintage"
	ConditionForParts = "For parts"
)

// conditionVocabulary maps lowercased site wording (LV, ET, RU, EN) to the canonical set.
var conditionVocabulary = map[string]string{
	"jauns":                      ConditionNew,
	"jauna":                      ConditionNew,
	"lietots, lieliskā stāvoklī": ConditionLikeNew,
	"lietots, labā stāvoklī":     ConditionGood,
	"lietots, iespējami trūkumi": ConditionFair,
	"lietots":                    ConditionUsed,
	"antīks/ vintage":            ConditionVintage,
	"antīks/vintage":             ConditionVintage,
	"rezerves daļām":             ConditionForParts,

	"uus":           ConditionNew,
	"nagu uus":      ConditionLikeNew,
	"väga hea":      ConditionLikeNew,
	"hea":           ConditionGood,
	"rahuldav":      ConditionFair,
	"kasutatud":     ConditionUsed,
	"varuosadeks":   ConditionForParts,
	"vajab remonti": ConditionForParts,

	"новый":       ConditionNew,
	"новая":       ConditionNew,
	"как новый":   ConditionLikeNew,
	"хорошее":     ConditionGood,
	"б/у":         ConditionUsed,
	"на запчасти": ConditionForParts,

	"new":       ConditionNew,
	"like new":  ConditionLikeNew,
	"good":      ConditionGood,
	"fair":      ConditionFair,
	"used":      ConditionUsed,
	"vintage":   ConditionVintage,
	"for parts": ConditionForParts,
}

// MapCondition returns the canonical label for a site's condition text.
// Wording we do not know is passed through trimmed.
func MapCondition(raw string) string {
	raw = CollapseSpace(raw)
	if raw == "" {
		return ""
	}
	if c, ok := conditionVocabulary[strings.ToLower(raw)]; ok {
		return c
	}
	return raw
}
