// Package explain assembles the terminal artifact of a request: ordered
// recommendations with per-candidate justifications and confidence scores,
// plus a one-line profile summary. The deterministic output is always
// authoritative; the optional LLM narrative only decorates it.
package explain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"muza/internal/llm"
	"muza/internal/logging"
	"muza/internal/profile"
	"muza/internal/prompts"
	"muza/internal/rank"
)

const (
	// unresolvedPenalty shrinks confidence once per informative field the
	// dialogue left unresolved.
	unresolvedPenalty = 0.9
	// confidenceFloor is the lowest penalized confidence, still capped by
	// the composite score.
	confidenceFloor = 0.3

	shortDescriptionRunes = 150

	narrativeTemperature = 0.7
	narrativeMaxTokens   = 300
)

const (
	noMatchExplanation = "К сожалению, подходящих выставок не нашлось. Попробуйте описать интересы иначе или расширить запрос."
	emptySummary       = "Предпочтения не указаны."
)

// DateRange carries the exhibition window as ISO date strings; open ends
// are empty strings.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Recommendation is one justified entry of the final result.
type Recommendation struct {
	ID               string    `json:"id"`
	Museum           string    `json:"museum_name"`
	Title            string    `json:"title"`
	ShortDescription string    `json:"short_description"`
	WhyFit           string    `json:"why_fit"`
	Dates            DateRange `json:"dates"`
	Tags             []string  `json:"tags,omitempty"`
	Accessibility    []string  `json:"accessibility,omitempty"`
	Location         string    `json:"location,omitempty"`
	// Score is the composite ranking score, Similarity the raw vector
	// similarity it was built from.
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// Result is the terminal artifact of one request.
type Result struct {
	Summary         string           `json:"user_summary"`
	Recommendations []Recommendation `json:"recommendations"`
	Explanation     string           `json:"explainers"`
	// Narrative is the optional LLM-written intro paragraph.
	Narrative string `json:"narrative,omitempty"`
	// Degraded names extraction strategies that contributed nothing to
	// this request; filled in by the engine.
	Degraded []string `json:"degraded,omitempty"`
}

// Config wires a Synthesizer. Narrator and Prompts are optional; without
// them results simply carry no narrative.
type Config struct {
	Narrator llm.CompletionClient
	Prompts  *prompts.PromptLoader
	Logger   logging.Logger
}

// Synthesizer builds Results from ranked candidates. Stateless, safe for
// concurrent use.
type Synthesizer struct {
	narrator llm.CompletionClient
	prompts  *prompts.PromptLoader
	log      logging.Logger
}

func NewSynthesizer(config Config) *Synthesizer {
	return &Synthesizer{
		narrator: config.Narrator,
		prompts:  config.Prompts,
		log:      logging.OrNop(config.Logger),
	}
}

// Synthesize packages ranked candidates into the final result. An empty
// ranked list yields a well-formed no-match result, never an error.
func (s *Synthesizer) Synthesize(ctx context.Context, p profile.Profile, ranked []rank.Ranked) Result {
	summary := p.Summary()
	if summary == "" {
		summary = emptySummary
	}

	if len(ranked) == 0 {
		return Result{Summary: summary, Explanation: noMatchExplanation}
	}

	penalty := math.Pow(unresolvedPenalty, float64(len(p.UnresolvedInformative())))

	recommendations := make([]Recommendation, 0, len(ranked))
	for _, r := range ranked {
		e := r.Exhibition
		recommendations = append(recommendations, Recommendation{
			ID:               e.ID,
			Museum:           e.Museum,
			Title:            e.Title,
			ShortDescription: shorten(e.Description),
			WhyFit:           s.whyFit(p, r),
			Dates:            DateRange{Start: e.StartDate.String(), End: e.EndDate.String()},
			Tags:             e.Tags,
			Accessibility:    e.Accessibility,
			Location:         e.Location,
			Score:            r.Composite,
			Similarity:       r.Similarity,
			Confidence:       confidence(r.Composite, penalty),
		})
	}

	result := Result{Summary: summary, Recommendations: recommendations}
	result.Narrative = s.narrate(ctx, summary, recommendations)
	return result
}

// whyFit names the specific signals that drove the candidate's score, in
// a fixed order: matched interests, company fit, mood fit.
func (s *Synthesizer) whyFit(p profile.Profile, r rank.Ranked) string {
	moodTag := ""
	if p.Resolved(profile.FieldMood) {
		moodTag, _ = profile.MoodTag(p.Mood.Value)
	}

	var interests []string
	moodMatched := false
	for _, tag := range r.MatchedTags {
		if moodTag != "" && tag == moodTag {
			moodMatched = true
			continue
		}
		interests = append(interests, tag)
	}

	var parts []string
	if len(interests) > 0 {
		parts = append(parts, "Совпадение по интересам: "+strings.Join(interests, ", "))
	}
	if p.Resolved(profile.FieldCompanionship) {
		parts = append(parts, "Подходит для вашей компании")
	}
	if moodMatched {
		parts = append(parts, "Соответствует вашему настроению")
	}
	if len(parts) == 0 {
		return "Подходит по общей тематике"
	}
	return strings.Join(parts, "; ")
}

// confidence applies the unresolved-field penalty. It never exceeds the
// composite score, and never drops below the floor unless the composite
// itself is lower.
func confidence(composite, penalty float64) float64 {
	c := composite * penalty
	if c < confidenceFloor {
		c = confidenceFloor
	}
	if c > composite {
		c = composite
	}
	return c
}

func shorten(description string) string {
	runes := []rune(description)
	if len(runes) <= shortDescriptionRunes {
		return description
	}
	return strings.TrimSpace(string(runes[:shortDescriptionRunes])) + "..."
}

// narrate asks the completion client for a short intro paragraph. Any
// failure drops the narrative; the deterministic result stands on its own.
func (s *Synthesizer) narrate(ctx context.Context, summary string, recommendations []Recommendation) string {
	if s.narrator == nil || s.prompts == nil {
		return ""
	}
	log := logging.FromContext(ctx, s.log)

	var lines []string
	for i, rec := range recommendations {
		lines = append(lines, fmt.Sprintf("%d. %s — «%s»: %s", i+1, rec.Museum, rec.Title, rec.WhyFit))
	}
	prompt, err := s.prompts.NarrativePrompt(summary, strings.Join(lines, "\n"))
	if err != nil {
		log.Warn("narrative prompt failed: %v", err)
		return ""
	}

	resp, err := s.narrator.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: narrativeTemperature,
		MaxTokens:   narrativeMaxTokens,
	})
	if err != nil {
		log.Debug("narrative dropped: %v", err)
		return ""
	}
	narrative := strings.TrimSpace(resp.Content)
	if narrative == "" || !strings.ContainsFunc(narrative, func(r rune) bool { return unicode.Is(unicode.Cyrillic, r) }) {
		return ""
	}
	return narrative
}
