package explain

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"muza/internal/catalog"
	"muza/internal/index"
	"muza/internal/llm"
	"muza/internal/profile"
	"muza/internal/prompts"
	"muza/internal/rank"
)

func rankedCandidate(id string, composite, similarity float64, matched ...string) rank.Ranked {
	return rank.Ranked{
		Candidate: index.Candidate{
			Exhibition: catalog.Exhibition{
				ID:          id,
				Museum:      "Третьяковская галерея",
				Title:       "Импрессионисты",
				Description: strings.Repeat("Выставка о свете и цвете. ", 12),
				Tags:        []string{"живопись", "фотография"},
				Location:    "Лаврушинский переулок, 10",
			},
			Similarity: similarity,
		},
		Composite:   composite,
		MatchedTags: matched,
		Position:    1,
	}
}

func resolvedProfile() profile.Profile {
	return profile.Profile{
		Age:           &profile.Entry{Value: "25", Confidence: 0.9, Strategy: "rules"},
		Companionship: &profile.Entry{Value: profile.CompanionPartner, Confidence: 0.85, Strategy: "rules"},
		Mood:          &profile.Entry{Value: profile.MoodRomantic, Confidence: 0.8, Strategy: "rules"},
		Interests: []profile.Entry{
			{Value: "фотография", Confidence: 0.8, Strategy: "rules"},
		},
	}
}

func TestSynthesizeJustificationNamesMatchedTags(t *testing.T) {
	p := profile.Profile{
		Companionship: &profile.Entry{Value: profile.CompanionPartner, Confidence: 0.85, Strategy: "rules"},
		Interests: []profile.Entry{
			{Value: "фотография", Confidence: 0.8, Strategy: "rules"},
			{Value: "интерактив", Confidence: 0.8, Strategy: "rules"},
		},
	}
	ranked := []rank.Ranked{rankedCandidate("x-1", 0.88, 0.8, "фотография", "интерактив")}

	got := NewSynthesizer(Config{}).Synthesize(context.Background(), p, ranked)
	if len(got.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(got.Recommendations))
	}

	rec := got.Recommendations[0]
	want := "Совпадение по интересам: фотография, интерактив; Подходит для вашей компании"
	if rec.WhyFit != want {
		t.Fatalf("why_fit = %q, want %q", rec.WhyFit, want)
	}
	if rec.Score != 0.88 || rec.Similarity != 0.8 {
		t.Fatalf("scores not preserved: %f, %f", rec.Score, rec.Similarity)
	}
	if !strings.HasSuffix(rec.ShortDescription, "...") {
		t.Fatalf("long description not shortened: %q", rec.ShortDescription)
	}
	if got.Summary == "" || got.Summary == emptySummary {
		t.Fatalf("expected resolved-field summary, got %q", got.Summary)
	}
}

func TestSynthesizeMoodFit(t *testing.T) {
	p := profile.Profile{
		Mood: &profile.Entry{Value: profile.MoodRomantic, Confidence: 0.8, Strategy: "rules"},
	}
	ranked := []rank.Ranked{rankedCandidate("x-1", 0.7, 0.5, "романтика")}

	got := NewSynthesizer(Config{}).Synthesize(context.Background(), p, ranked)
	rec := got.Recommendations[0]
	if rec.WhyFit != "Соответствует вашему настроению" {
		t.Fatalf("why_fit = %q", rec.WhyFit)
	}
}

func TestSynthesizeFallbackJustification(t *testing.T) {
	got := NewSynthesizer(Config{}).Synthesize(context.Background(), profile.Profile{},
		[]rank.Ranked{rankedCandidate("x-1", 0.5, 0.5)})
	rec := got.Recommendations[0]
	if rec.WhyFit != "Подходит по общей тематике" {
		t.Fatalf("why_fit = %q", rec.WhyFit)
	}
	if got.Summary != emptySummary {
		t.Fatalf("empty profile summary = %q", got.Summary)
	}
}

func TestSynthesizeConfidencePenalty(t *testing.T) {
	// Fully resolved profile: no penalty.
	full := resolvedProfile()
	got := NewSynthesizer(Config{}).Synthesize(context.Background(), full,
		[]rank.Ranked{rankedCandidate("x-1", 0.88, 0.8, "фотография")})
	if c := got.Recommendations[0].Confidence; math.Abs(c-0.88) > 1e-9 {
		t.Fatalf("expected unpenalized confidence 0.88, got %f", c)
	}

	// Two unresolved informative fields: one factor per field.
	partial := profile.Profile{
		Age: &profile.Entry{Value: "25", Confidence: 0.9, Strategy: "rules"},
		Interests: []profile.Entry{
			{Value: "фотография", Confidence: 0.8, Strategy: "rules"},
		},
	}
	got = NewSynthesizer(Config{}).Synthesize(context.Background(), partial,
		[]rank.Ranked{rankedCandidate("x-1", 0.88, 0.8, "фотография")})
	if c := got.Recommendations[0].Confidence; math.Abs(c-0.88*0.9*0.9) > 1e-9 {
		t.Fatalf("expected confidence 0.7128, got %f", c)
	}
}

func TestSynthesizeConfidenceBounds(t *testing.T) {
	// The floor holds when the penalty would sink below it.
	empty := profile.Profile{}
	got := NewSynthesizer(Config{}).Synthesize(context.Background(), empty,
		[]rank.Ranked{rankedCandidate("x-1", 0.4, 0.4)})
	if c := got.Recommendations[0].Confidence; math.Abs(c-0.3) > 1e-9 {
		t.Fatalf("expected floored confidence 0.3, got %f", c)
	}

	// Confidence never exceeds the composite, even below the floor.
	got = NewSynthesizer(Config{}).Synthesize(context.Background(), empty,
		[]rank.Ranked{rankedCandidate("x-1", 0.2, 0.2)})
	if c := got.Recommendations[0].Confidence; math.Abs(c-0.2) > 1e-9 {
		t.Fatalf("confidence must not exceed composite: %f", c)
	}
}

func TestSynthesizeEmptyRankedList(t *testing.T) {
	got := NewSynthesizer(Config{}).Synthesize(context.Background(), resolvedProfile(), nil)
	if len(got.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %d", len(got.Recommendations))
	}
	if got.Explanation == "" {
		t.Fatal("no-match result needs an explanation")
	}
	if got.Summary == "" {
		t.Fatal("no-match result still carries the profile summary")
	}
}

func newLoader(t *testing.T) *prompts.PromptLoader {
	t.Helper()
	loader, err := prompts.NewPromptLoader()
	if err != nil {
		t.Fatalf("prompt loader: %v", err)
	}
	return loader
}

func TestSynthesizeNarrative(t *testing.T) {
	narrator := llm.NewMockClient("Для романтического вечера отлично подойдут импрессионисты.")
	s := NewSynthesizer(Config{Narrator: narrator, Prompts: newLoader(t)})

	got := s.Synthesize(context.Background(), resolvedProfile(),
		[]rank.Ranked{rankedCandidate("x-1", 0.88, 0.8, "фотография")})
	if got.Narrative != "Для романтического вечера отлично подойдут импрессионисты." {
		t.Fatalf("narrative = %q", got.Narrative)
	}

	reqs := narrator.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 completion request, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "Импрессионисты") {
		t.Fatal("narrative prompt misses the recommendation listing")
	}
}

func TestSynthesizeNarrativeDroppedOnFailure(t *testing.T) {
	s := NewSynthesizer(Config{
		Narrator: llm.NewFailingMockClient(errors.New("provider down")),
		Prompts:  newLoader(t),
	})
	got := s.Synthesize(context.Background(), resolvedProfile(),
		[]rank.Ranked{rankedCandidate("x-1", 0.88, 0.8)})
	if got.Narrative != "" {
		t.Fatalf("narrative must be dropped on failure, got %q", got.Narrative)
	}
	if len(got.Recommendations) != 1 {
		t.Fatal("deterministic result must survive narrator failure")
	}
}

func TestSynthesizeNarrativeRejectsGarbage(t *testing.T) {
	s := NewSynthesizer(Config{
		Narrator: llm.NewMockClient("{}"),
		Prompts:  newLoader(t),
	})
	got := s.Synthesize(context.Background(), resolvedProfile(),
		[]rank.Ranked{rankedCandidate("x-1", 0.88, 0.8)})
	if got.Narrative != "" {
		t.Fatalf("non-Russian narrative must be dropped, got %q", got.Narrative)
	}
}
