package profile

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MatchKind says how a token reached its canonical tag.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchVocabulary
	MatchAlias
	MatchFuzzy
)

// interestVocabulary is the closed tag vocabulary. Multi-word entries first
// so substring scans prefer the longer match.
var interestVocabulary = []string{
	"современное искусство",
	"фотография",
	"живопись",
	"искусство",
	"история",
	"наука",
	"технологии",
	"музыка",
	"поэзия",
	"литература",
	"архитектура",
	"скульптура",
	"классика",
	"интерактив",
}

// interestAliases maps common variants to vocabulary tags.
var interestAliases = map[string]string{
	"фото":       "фотография",
	"снимки":     "фотография",
	"фотосъемка": "фотография",
	"картины":    "живопись",
	"полотна":    "живопись",
	"техника":    "технологии",
	"стихи":      "поэзия",
	"книги":      "литература",
	"здания":     "архитектура",
	"статуи":     "скульптура",
	"модерн":     "современное искусство",
}

var moodAliases = map[string]string{
	"sad": MoodSad, "happy": MoodHappy, "romantic": MoodRomantic, "calm": MoodCalm,
	"грустно": MoodSad, "грусть": MoodSad, "грустное": MoodSad, "печально": MoodSad, "печаль": MoodSad,
	"весело": MoodHappy, "веселье": MoodHappy, "радостно": MoodHappy, "радость": MoodHappy,
	"романтично": MoodRomantic, "романтика": MoodRomantic, "романтичное": MoodRomantic,
	"спокойно": MoodCalm, "спокойное": MoodCalm, "умиротворенно": MoodCalm, "умиротворение": MoodCalm,
}

var companionshipAliases = map[string]string{
	"partner": CompanionPartner, "child": CompanionChild, "parent": CompanionParent,
	"grandparent": CompanionGrandparent, "friends": CompanionFriends, "friend": CompanionFriends,
	"alone": CompanionAlone, "solo": CompanionAlone, "family": CompanionParent,
	"девушка": CompanionPartner, "парень": CompanionPartner, "жена": CompanionPartner, "муж": CompanionPartner,
	"бабушка": CompanionGrandparent, "дедушка": CompanionGrandparent,
	"мама": CompanionParent, "папа": CompanionParent, "родители": CompanionParent, "семья": CompanionParent,
	"друг": CompanionFriends, "подруга": CompanionFriends, "друзья": CompanionFriends,
	"ребенок": CompanionChild, "ребёнок": CompanionChild, "дети": CompanionChild, "сын": CompanionChild, "дочь": CompanionChild,
	"один": CompanionAlone, "одна": CompanionAlone, "сам": CompanionAlone, "сама": CompanionAlone,
}

var accessibilityAliases = map[string]string{
	"wheelchair": AccessWheelchair, "low-vision": AccessLowVision,
	"коляска": AccessWheelchair, "инвалид": AccessWheelchair, "пандус": AccessWheelchair,
	"слабовидящий": AccessLowVision, "незрячий": AccessLowVision,
}

// moodTagAliases map canonical moods to the Russian tag noun used when
// matching against candidate tag sets.
var moodTagAliases = map[string]string{
	MoodSad:      "созерцание",
	MoodHappy:    "веселье",
	MoodRomantic: "романтика",
	MoodCalm:     "спокойствие",
}

// Vocabulary resolves free-text tokens to the closed tag vocabulary.
// Lookup order: exact vocabulary hit, alias hit, fuzzy Levenshtein match
// against vocabulary entries and alias keys (catches inflected forms like
// "живописи" and near-miss typos). Safe for concurrent use.
type Vocabulary struct {
	dmp *diffmatchpatch.DiffMatchPatch
	// maxDistance is the largest edit distance a fuzzy hit may have.
	maxDistance int
}

// NewVocabulary returns the default vocabulary resolver.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{dmp: diffmatchpatch.New(), maxDistance: 2}
}

// Interests returns the closed interest vocabulary.
func (v *Vocabulary) Interests() []string {
	out := make([]string, len(interestVocabulary))
	copy(out, interestVocabulary)
	return out
}

// CanonicalInterest maps token to a vocabulary tag. The second result tells
// whether the hit was exact, an alias, or fuzzy.
func (v *Vocabulary) CanonicalInterest(token string) (string, MatchKind) {
	token = NormalizeToken(token)
	if token == "" {
		return "", MatchNone
	}
	for _, tag := range interestVocabulary {
		if token == tag {
			return tag, MatchVocabulary
		}
	}
	if tag, ok := interestAliases[token]; ok {
		return tag, MatchAlias
	}
	if tag := v.fuzzyInterest(token); tag != "" {
		return tag, MatchFuzzy
	}
	return "", MatchNone
}

// fuzzyInterest scans vocabulary entries and alias keys for the closest
// Levenshtein match within maxDistance. Short tokens are excluded: nearly
// everything is within distance 2 of a four-letter word.
func (v *Vocabulary) fuzzyInterest(token string) string {
	if len([]rune(token)) < 5 {
		return ""
	}
	best := ""
	bestDist := v.maxDistance + 1
	try := func(candidate, canonical string) {
		if abs(len([]rune(candidate))-len([]rune(token))) > v.maxDistance {
			return
		}
		diffs := v.dmp.DiffMain(token, candidate, false)
		if d := v.dmp.DiffLevenshtein(diffs); d < bestDist {
			bestDist = d
			best = canonical
		}
	}
	for _, tag := range interestVocabulary {
		try(tag, tag)
	}
	// Sorted scan keeps equidistant ties deterministic across runs.
	aliases := make([]string, 0, len(interestAliases))
	for alias := range interestAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		try(alias, interestAliases[alias])
	}
	return best
}

// CanonicalMood maps a free-text mood to its canonical value.
func (v *Vocabulary) CanonicalMood(token string) (string, bool) {
	m, ok := moodAliases[NormalizeToken(token)]
	return m, ok
}

// CanonicalCompanionship maps a free-text companionship to its canonical
// value.
func (v *Vocabulary) CanonicalCompanionship(token string) (string, bool) {
	c, ok := companionshipAliases[NormalizeToken(token)]
	return c, ok
}

// CanonicalAccessibility maps a free-text accessibility need to its
// canonical value.
func (v *Vocabulary) CanonicalAccessibility(token string) (string, bool) {
	a, ok := accessibilityAliases[NormalizeToken(token)]
	return a, ok
}

// MoodTag returns the Russian tag noun for a canonical mood, used when
// intersecting the profile set with candidate tags.
func MoodTag(mood string) (string, bool) {
	t, ok := moodTagAliases[mood]
	return t, ok
}

// NormalizeToken lowercases and strips surrounding punctuation and space.
func NormalizeToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
