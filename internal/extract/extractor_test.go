package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"muza/internal/profile"
)

type stubStrategy struct {
	name     string
	evidence []profile.Evidence
	err      error
	delay    time.Duration
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(ctx context.Context, utterance string) ([]profile.Evidence, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.evidence, s.err
}

func defaultStrategies() []Strategy {
	vocab := profile.NewVocabulary()
	return []Strategy{
		NewRulesStrategy(vocab, nil),
		NewLexicalStrategy(nil),
	}
}

func TestExtractPhotographyUtterance(t *testing.T) {
	extractor := NewExtractor(Config{Strategies: defaultStrategies()})

	result := extractor.Extract(context.Background(), "Мне 25, люблю фотографию", profile.Profile{})

	p := result.Profile
	if years, ok := p.AgeYears(); !ok || years != 25 {
		t.Fatalf("age = %v %v, want 25 true", years, ok)
	}
	if !p.Resolved(profile.FieldAge) {
		t.Fatal("age should be resolved")
	}
	if got := p.ResolvedInterests(); len(got) != 1 || got[0] != "фотография" {
		t.Fatalf("resolved interests = %v, want [фотография]", got)
	}

	// Companionship and mood stay open; companionship is asked first.
	unresolved := p.UnresolvedInformative()
	if len(unresolved) != 2 {
		t.Fatalf("unresolved = %v, want companionship and mood", unresolved)
	}
	if unresolved[0] != profile.FieldCompanionship || unresolved[1] != profile.FieldMood {
		t.Fatalf("unresolved order = %v", unresolved)
	}
	if len(result.Degraded) != 0 {
		t.Fatalf("degraded = %v, want none", result.Degraded)
	}
}

func TestExtractKeepsRunningWhenOneStrategyFails(t *testing.T) {
	failing := &stubStrategy{name: "broken", err: errors.New("backend down")}
	working := &stubStrategy{name: "working", evidence: []profile.Evidence{
		{Field: profile.FieldMood, Value: profile.MoodCalm, Confidence: 0.8, Strategy: StrategyRules},
	}}

	extractor := NewExtractor(Config{Strategies: []Strategy{failing, working}})
	result := extractor.Extract(context.Background(), "что-нибудь", profile.Profile{})

	if len(result.Degraded) != 1 || result.Degraded[0] != "broken" {
		t.Fatalf("degraded = %v, want [broken]", result.Degraded)
	}
	if result.Profile.Mood == nil || result.Profile.Mood.Value != profile.MoodCalm {
		t.Fatalf("mood = %v, want calm from surviving strategy", result.Profile.Mood)
	}
}

func TestExtractTimesOutSlowStrategy(t *testing.T) {
	slow := &stubStrategy{name: "slow", delay: 200 * time.Millisecond}
	fast := &stubStrategy{name: "fast", evidence: []profile.Evidence{
		{Field: profile.FieldAge, Value: "30", Confidence: 0.9, Strategy: StrategyRules},
	}}

	extractor := NewExtractor(Config{
		Strategies: []Strategy{slow, fast},
		Timeout:    20 * time.Millisecond,
	})
	result := extractor.Extract(context.Background(), "мне 30", profile.Profile{})

	if len(result.Degraded) != 1 || result.Degraded[0] != "slow" {
		t.Fatalf("degraded = %v, want [slow]", result.Degraded)
	}
	if years, ok := result.Profile.AgeYears(); !ok || years != 30 {
		t.Fatalf("age = %v %v, want 30 true", years, ok)
	}
}

func TestExtractMergesIntoPrior(t *testing.T) {
	extractor := NewExtractor(Config{Strategies: defaultStrategies()})

	first := extractor.Extract(context.Background(), "Мне 25, люблю фотографию", profile.Profile{})
	second := extractor.Extract(context.Background(), "пойду с девушкой", first.Profile)

	p := second.Profile
	if years, ok := p.AgeYears(); !ok || years != 25 {
		t.Fatalf("age lost on second turn: %v %v", years, ok)
	}
	if p.Companionship == nil || p.Companionship.Value != profile.CompanionPartner {
		t.Fatalf("companionship = %v, want partner", p.Companionship)
	}
	if got := p.ResolvedInterests(); len(got) != 1 || got[0] != "фотография" {
		t.Fatalf("interests lost on second turn: %v", got)
	}
}
