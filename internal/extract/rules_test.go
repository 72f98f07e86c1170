package extract

import (
	"context"
	"testing"

	"muza/internal/profile"
)

func newRules(t *testing.T) Strategy {
	t.Helper()
	return NewRulesStrategy(profile.NewVocabulary(), nil)
}

func findEvidence(evidence []profile.Evidence, field profile.Field, value string) *profile.Evidence {
	for i := range evidence {
		if evidence[i].Field == field && evidence[i].Value == value {
			return &evidence[i]
		}
	}
	return nil
}

func TestRulesAgePatterns(t *testing.T) {
	rules := newRules(t)

	cases := []struct {
		utterance string
		want      string
	}{
		{"Мне 25, люблю музеи", "25"},
		{"нам по 30 лет", "30"},
		{"дочке 7 лет", "7"},
		{"возраст: 42", "42"},
		{"мне 150 лет", ""},
		{"билет за 300 рублей", ""},
		{"хочу на выставку", ""},
	}
	for _, tc := range cases {
		evidence, err := rules.Extract(context.Background(), tc.utterance)
		if err != nil {
			t.Fatalf("Extract(%q): %v", tc.utterance, err)
		}
		got := findEvidence(evidence, profile.FieldAge, tc.want)
		if tc.want == "" {
			for _, ev := range evidence {
				if ev.Field == profile.FieldAge {
					t.Errorf("Extract(%q): unexpected age evidence %v", tc.utterance, ev)
				}
			}
			continue
		}
		if got == nil {
			t.Errorf("Extract(%q): missing age evidence %q, got %v", tc.utterance, tc.want, evidence)
			continue
		}
		if got.Confidence != 0.9 {
			t.Errorf("Extract(%q): age confidence = %v, want 0.9", tc.utterance, got.Confidence)
		}
	}
}

func TestRulesCompanionship(t *testing.T) {
	rules := newRules(t)

	cases := []struct {
		utterance string
		want      string
	}{
		{"пойду с девушкой", profile.CompanionPartner},
		{"с женой и ребенком", profile.CompanionPartner}, // first hit wins
		{"поведу бабушку", profile.CompanionGrandparent},
		{"идем с родителями", profile.CompanionParent},
		{"с друзьями на выходных", profile.CompanionFriends},
		{"с подругой", profile.CompanionFriends},
		{"возьму сына", profile.CompanionChild},
		{"пойду один", profile.CompanionAlone},
		{"пойду сама", profile.CompanionAlone},
		{"самое интересное в городе", ""},
	}
	for _, tc := range cases {
		evidence, err := rules.Extract(context.Background(), tc.utterance)
		if err != nil {
			t.Fatalf("Extract(%q): %v", tc.utterance, err)
		}
		var got *profile.Evidence
		for i := range evidence {
			if evidence[i].Field == profile.FieldCompanionship {
				got = &evidence[i]
				break
			}
		}
		if tc.want == "" {
			if got != nil {
				t.Errorf("Extract(%q): unexpected companionship %v", tc.utterance, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("Extract(%q): missing companionship %q", tc.utterance, tc.want)
			continue
		}
		if got.Value != tc.want {
			t.Errorf("Extract(%q): companionship = %q, want %q", tc.utterance, got.Value, tc.want)
		}
		if got.Confidence != 0.85 {
			t.Errorf("Extract(%q): companionship confidence = %v, want 0.85", tc.utterance, got.Confidence)
		}
	}
}

func TestRulesMood(t *testing.T) {
	rules := newRules(t)

	cases := []struct {
		utterance string
		want      string
	}{
		{"мне грустно сегодня", profile.MoodSad},
		{"хочется чего-то веселого", profile.MoodHappy},
		{"настроение романтичное", profile.MoodRomantic},
		{"хочу спокойный вечер", profile.MoodCalm},
	}
	for _, tc := range cases {
		evidence, err := rules.Extract(context.Background(), tc.utterance)
		if err != nil {
			t.Fatalf("Extract(%q): %v", tc.utterance, err)
		}
		got := findEvidence(evidence, profile.FieldMood, tc.want)
		if got == nil {
			t.Errorf("Extract(%q): missing mood %q, got %v", tc.utterance, tc.want, evidence)
			continue
		}
		if got.Confidence != 0.8 {
			t.Errorf("Extract(%q): mood confidence = %v, want 0.8", tc.utterance, got.Confidence)
		}
	}
}

func TestRulesInterests(t *testing.T) {
	rules := newRules(t)

	evidence, err := rules.Extract(context.Background(), "Люблю фотографию и современное искусство")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	photo := findEvidence(evidence, profile.FieldInterests, "фотография")
	if photo == nil {
		t.Fatalf("missing фотография evidence, got %v", evidence)
	}
	if photo.Confidence != 0.75 {
		t.Errorf("фотография (fuzzy) confidence = %v, want 0.75", photo.Confidence)
	}

	modern := findEvidence(evidence, profile.FieldInterests, "современное искусство")
	if modern == nil {
		t.Fatalf("missing современное искусство evidence, got %v", evidence)
	}
	if modern.Confidence != 0.8 {
		t.Errorf("современное искусство confidence = %v, want 0.8", modern.Confidence)
	}

	// The constituent words of a matched multi-word tag must not
	// re-enter as a standalone tag or verbatim leftovers.
	if ev := findEvidence(evidence, profile.FieldInterests, "искусство"); ev != nil {
		t.Errorf("unexpected standalone искусство evidence: %v", ev)
	}
	if ev := findEvidence(evidence, profile.FieldInterests, "современное"); ev != nil {
		t.Errorf("unexpected verbatim leftover: %v", ev)
	}
}

func TestRulesVerbatimUnmappedInterests(t *testing.T) {
	rules := newRules(t)

	evidence, err := rules.Extract(context.Background(), "Обожаю аниме и граффити")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for _, token := range []string{"аниме", "граффити"} {
		ev := findEvidence(evidence, profile.FieldInterests, token)
		if ev == nil {
			t.Errorf("missing verbatim evidence for %q, got %v", token, evidence)
			continue
		}
		if !ev.Verbatim {
			t.Errorf("%q: Verbatim = false, want true", token)
		}
		if ev.Confidence != profile.VerbatimConfidence {
			t.Errorf("%q: confidence = %v, want %v", token, ev.Confidence, profile.VerbatimConfidence)
		}
	}
}

func TestRulesVerbatimSkipsOtherFieldTokens(t *testing.T) {
	rules := newRules(t)

	// "романтику" is a mood stem hit; it must not double as a verbatim
	// interest.
	evidence, err := rules.Extract(context.Background(), "Люблю романтику")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, ev := range evidence {
		if ev.Field == profile.FieldInterests {
			t.Errorf("unexpected interest evidence: %v", ev)
		}
	}
	if findEvidence(evidence, profile.FieldMood, profile.MoodRomantic) == nil {
		t.Fatalf("missing romantic mood, got %v", evidence)
	}
}

func TestRulesAccessibility(t *testing.T) {
	rules := newRules(t)

	evidence, err := rules.Extract(context.Background(), "Я на коляске, и со мной слабовидящий друг")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if findEvidence(evidence, profile.FieldAccessibility, profile.AccessWheelchair) == nil {
		t.Errorf("missing wheelchair evidence, got %v", evidence)
	}
	if findEvidence(evidence, profile.FieldAccessibility, profile.AccessLowVision) == nil {
		t.Errorf("missing low-vision evidence, got %v", evidence)
	}
}
