package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"muza/internal/logging"
	"muza/internal/profile"
)

// Rule hit confidences. Deterministic hits sit above every other strategy
// so they win fusion ties; alias and fuzzy hits rank slightly below exact
// vocabulary hits.
const (
	confRuleAge           = 0.9
	confRuleCompanionship = 0.85
	confRuleMood          = 0.8
	confRuleVocabulary    = 0.8
	confRuleAlias         = 0.75
	confRuleAccessibility = 0.8
)

// Age sanity window. Matches outside it are treated as non-ages
// (ticket numbers, years, room numbers).
const (
	minPlausibleAge = 5
	maxPlausibleAge = 120
)

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,3})\s*(?:лет|год|года)`),
	regexp.MustCompile(`мне\s*(\d{1,3})`),
	regexp.MustCompile(`возраст[:\s]*(\d{1,3})`),
}

// companionStems are matched as token prefixes, in order; the first hit
// wins. exact entries must match the whole token (short stems would
// otherwise swallow unrelated words).
var companionStems = []struct {
	stem  string
	value string
	exact bool
}{
	{stem: "девушк", value: profile.CompanionPartner},
	{stem: "парн", value: profile.CompanionPartner},
	{stem: "парен", value: profile.CompanionPartner},
	{stem: "жен", value: profile.CompanionPartner},
	{stem: "муж", value: profile.CompanionPartner},
	{stem: "бабушк", value: profile.CompanionGrandparent},
	{stem: "дедушк", value: profile.CompanionGrandparent},
	{stem: "мам", value: profile.CompanionParent},
	{stem: "пап", value: profile.CompanionParent},
	{stem: "родител", value: profile.CompanionParent},
	{stem: "подруг", value: profile.CompanionFriends},
	{stem: "друз", value: profile.CompanionFriends},
	{stem: "друг", value: profile.CompanionFriends},
	{stem: "ребенк", value: profile.CompanionChild},
	{stem: "ребёнк", value: profile.CompanionChild},
	{stem: "дет", value: profile.CompanionChild},
	{stem: "сын", value: profile.CompanionChild},
	{stem: "доч", value: profile.CompanionChild},
	{stem: "один", value: profile.CompanionAlone},
	{stem: "одна", value: profile.CompanionAlone, exact: true},
	{stem: "сам", value: profile.CompanionAlone, exact: true},
	{stem: "сама", value: profile.CompanionAlone, exact: true},
	{stem: "соло", value: profile.CompanionAlone, exact: true},
}

var moodStems = []struct {
	stem  string
	value string
}{
	{stem: "грустн", value: profile.MoodSad},
	{stem: "грусть", value: profile.MoodSad},
	{stem: "печаль", value: profile.MoodSad},
	{stem: "весел", value: profile.MoodHappy},
	{stem: "радост", value: profile.MoodHappy},
	{stem: "романти", value: profile.MoodRomantic},
	{stem: "споко", value: profile.MoodCalm},
	{stem: "умиротвор", value: profile.MoodCalm},
}

var accessibilityStems = []struct {
	stem  string
	value string
}{
	{stem: "коляск", value: profile.AccessWheelchair},
	{stem: "инвалид", value: profile.AccessWheelchair},
	{stem: "слабовид", value: profile.AccessLowVision},
	{stem: "незряч", value: profile.AccessLowVision},
}

// interestLeadPattern captures free text following "I like/enjoy" verbs;
// unmapped tokens from it are kept verbatim at low confidence.
var interestLeadPattern = regexp.MustCompile(`(?:люблю|обожаю|нравится|нравятся|интересуюсь|увлекаюсь)\s+([^.!?,;]+)`)

var verbatimStopwords = map[string]bool{
	"и": true, "а": true, "с": true, "в": true, "на": true, "но": true,
	"очень": true, "тоже": true, "еще": true, "ещё": true, "мне": true,
	"я": true, "все": true, "всё": true, "это": true,
}

type rulesStrategy struct {
	vocab *profile.Vocabulary
	log   logging.Logger
}

// NewRulesStrategy builds the deterministic pattern strategy. It cannot
// fail: Extract always returns a nil error.
func NewRulesStrategy(vocab *profile.Vocabulary, log logging.Logger) Strategy {
	return &rulesStrategy{vocab: vocab, log: logging.OrNop(log)}
}

func (s *rulesStrategy) Name() string { return StrategyRules }

func (s *rulesStrategy) Extract(_ context.Context, utterance string) ([]profile.Evidence, error) {
	text := strings.ToLower(utterance)
	tokens := splitWords(text)

	var out []profile.Evidence
	out = append(out, s.extractAge(text)...)
	out = append(out, s.extractCompanionship(tokens)...)
	out = append(out, s.extractMood(tokens)...)
	out = append(out, s.extractAccessibility(tokens)...)
	out = append(out, s.extractInterests(text, tokens)...)

	s.log.Debug("rules produced %d evidence items", len(out))
	return out, nil
}

func (s *rulesStrategy) extractAge(text string) []profile.Evidence {
	for _, pattern := range agePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		years, err := strconv.Atoi(m[1])
		if err != nil || years < minPlausibleAge || years > maxPlausibleAge {
			continue
		}
		return []profile.Evidence{{
			Field:      profile.FieldAge,
			Value:      strconv.Itoa(years),
			Confidence: confRuleAge,
			Strategy:   StrategyRules,
			Span:       m[0],
		}}
	}
	return nil
}

func (s *rulesStrategy) extractCompanionship(tokens []string) []profile.Evidence {
	for _, token := range tokens {
		for _, c := range companionStems {
			hit := token == c.stem || (!c.exact && strings.HasPrefix(token, c.stem))
			if hit {
				return []profile.Evidence{{
					Field:      profile.FieldCompanionship,
					Value:      c.value,
					Confidence: confRuleCompanionship,
					Strategy:   StrategyRules,
					Span:       token,
				}}
			}
		}
	}
	return nil
}

func (s *rulesStrategy) extractMood(tokens []string) []profile.Evidence {
	for _, token := range tokens {
		for _, m := range moodStems {
			if strings.HasPrefix(token, m.stem) {
				return []profile.Evidence{{
					Field:      profile.FieldMood,
					Value:      m.value,
					Confidence: confRuleMood,
					Strategy:   StrategyRules,
					Span:       token,
				}}
			}
		}
	}
	return nil
}

func (s *rulesStrategy) extractAccessibility(tokens []string) []profile.Evidence {
	var out []profile.Evidence
	seen := map[string]bool{}
	for _, token := range tokens {
		for _, a := range accessibilityStems {
			if strings.HasPrefix(token, a.stem) && !seen[a.value] {
				seen[a.value] = true
				out = append(out, profile.Evidence{
					Field:      profile.FieldAccessibility,
					Value:      a.value,
					Confidence: confRuleAccessibility,
					Strategy:   StrategyRules,
					Span:       token,
				})
			}
		}
	}
	return out
}

func (s *rulesStrategy) extractInterests(text string, tokens []string) []profile.Evidence {
	var out []profile.Evidence
	seen := map[string]bool{}
	add := func(tag string, conf float64, span string, verbatim bool) {
		key := strings.ToLower(tag)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, profile.Evidence{
			Field:      profile.FieldInterests,
			Value:      tag,
			Confidence: conf,
			Strategy:   StrategyRules,
			Span:       span,
			Verbatim:   verbatim,
		})
	}

	matched := map[string]bool{}

	// Multi-word vocabulary entries only surface in a full-text scan.
	// Their constituent words are marked so they do not re-enter as
	// verbatim leftovers.
	for _, tag := range s.vocab.Interests() {
		if strings.Contains(tag, " ") && strings.Contains(text, tag) {
			add(tag, confRuleVocabulary, tag, false)
			for _, w := range strings.Fields(tag) {
				matched[w] = true
			}
		}
	}
	for _, token := range tokens {
		if matched[token] {
			continue
		}
		tag, kind := s.vocab.CanonicalInterest(token)
		switch kind {
		case profile.MatchVocabulary:
			add(tag, confRuleVocabulary, token, false)
			matched[token] = true
		case profile.MatchAlias, profile.MatchFuzzy:
			add(tag, confRuleAlias, token, false)
			matched[token] = true
		}
	}

	// Unmapped tokens after "люблю"-style verbs stay verbatim at low
	// confidence: they broaden search but never resolve the field.
	for _, m := range interestLeadPattern.FindAllStringSubmatch(text, -1) {
		for _, token := range splitWords(m[1]) {
			if matched[token] || verbatimStopwords[token] || len([]rune(token)) < 4 {
				continue
			}
			if s.otherFieldToken(token) {
				continue
			}
			add(token, profile.VerbatimConfidence, token, true)
		}
	}

	return out
}

// otherFieldToken reports whether a token already belongs to another
// dimension, so it is not duplicated as a verbatim interest.
func (s *rulesStrategy) otherFieldToken(token string) bool {
	for _, c := range companionStems {
		if token == c.stem || (!c.exact && strings.HasPrefix(token, c.stem)) {
			return true
		}
	}
	for _, m := range moodStems {
		if strings.HasPrefix(token, m.stem) {
			return true
		}
	}
	for _, a := range accessibilityStems {
		if strings.HasPrefix(token, a.stem) {
			return true
		}
	}
	return false
}

// splitWords lowers nothing: callers pass lowercased text. Splits on
// anything that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isLetterOrDigit(r)
	})
}

func isLetterOrDigit(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я', r >= 'А' && r <= 'Я', r == 'ё', r == 'Ё':
		return true
	}
	return false
}
