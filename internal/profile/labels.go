package profile

import (
	"fmt"
	"strings"
)

// Russian display labels for canonical values, used in user-facing
// summaries and clarification prompts. Unknown values pass through.

var companionshipLabels = map[string]string{
	CompanionPartner:     "с партнером",
	CompanionChild:       "с ребенком",
	CompanionParent:      "с родителями",
	CompanionGrandparent: "с бабушкой/дедушкой",
	CompanionFriends:     "с друзьями",
	CompanionAlone:       "один/одна",
}

var moodLabels = map[string]string{
	MoodSad:      "грустное настроение",
	MoodHappy:    "хорошее настроение",
	MoodRomantic: "романтическое настроение",
	MoodCalm:     "спокойное настроение",
}

var accessibilityLabels = map[string]string{
	AccessWheelchair: "на коляске",
	AccessLowVision:  "слабовидящие",
}

// CompanionshipLabel renders a canonical companionship value in Russian.
func CompanionshipLabel(value string) string {
	if label, ok := companionshipLabels[value]; ok {
		return label
	}
	return value
}

// MoodLabel renders a canonical mood value in Russian.
func MoodLabel(value string) string {
	if label, ok := moodLabels[value]; ok {
		return label
	}
	return value
}

// AccessibilityLabel renders a canonical accessibility value in Russian.
func AccessibilityLabel(value string) string {
	if label, ok := accessibilityLabels[value]; ok {
		return label
	}
	return value
}

// Summary renders the resolved fields as one Russian line, for prompts and
// result output. Empty string when nothing is resolved.
func (p Profile) Summary() string {
	var parts []string
	if p.Resolved(FieldAge) {
		if years, ok := p.AgeYears(); ok {
			parts = append(parts, fmt.Sprintf("Возраст: %d лет", years))
		}
	}
	if p.Resolved(FieldCompanionship) {
		parts = append(parts, "Состав: "+CompanionshipLabel(p.Companionship.Value))
	}
	if p.Resolved(FieldMood) {
		parts = append(parts, "Настроение: "+MoodLabel(p.Mood.Value))
	}
	if interests := p.ResolvedInterests(); len(interests) > 0 {
		parts = append(parts, "Интересы: "+strings.Join(interests, ", "))
	}
	if access := p.ResolvedAccessibility(); len(access) > 0 {
		labels := make([]string, len(access))
		for i, a := range access {
			labels[i] = AccessibilityLabel(a)
		}
		parts = append(parts, "Особые потребности: "+strings.Join(labels, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}
