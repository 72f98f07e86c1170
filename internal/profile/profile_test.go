package profile

import (
	"reflect"
	"testing"
)

func entry(value string, conf float64, strategy string) *Entry {
	return &Entry{Value: value, Confidence: conf, Strategy: strategy}
}

func TestMergeIdempotent(t *testing.T) {
	p := Profile{
		Age:           entry("25", 0.9, "rules"),
		Companionship: entry(CompanionPartner, 0.85, "rules"),
		Interests: []Entry{
			{Value: "фотография", Confidence: 0.8, Strategy: "rules"},
			{Value: "аниме", Confidence: 0.4, Strategy: "rules"},
		},
	}

	merged := Merge(p, p)
	if !reflect.DeepEqual(merged, p) {
		t.Fatalf("merge(p, p) != p:\n got %+v\nwant %+v", merged, p)
	}
}

func TestMergeNeverDowngrades(t *testing.T) {
	base := Profile{Mood: entry(MoodSad, 0.8, "rules")}
	update := Profile{Mood: entry(MoodHappy, 0.6, "generative")}

	merged := Merge(base, update)
	if merged.Mood.Value != MoodSad {
		t.Fatalf("lower-confidence update replaced resolved mood: %+v", merged.Mood)
	}

	// Equal confidence keeps the incumbent too; only strictly higher wins.
	merged = Merge(base, Profile{Mood: entry(MoodHappy, 0.8, "lexical")})
	if merged.Mood.Value != MoodSad {
		t.Fatalf("equal-confidence update replaced resolved mood: %+v", merged.Mood)
	}

	merged = Merge(base, Profile{Mood: entry(MoodHappy, 0.9, "rules")})
	if merged.Mood.Value != MoodHappy || merged.Mood.Confidence != 0.9 {
		t.Fatalf("strictly higher confidence did not win: %+v", merged.Mood)
	}
}

func TestMergeUnionsInterests(t *testing.T) {
	base := Profile{Interests: []Entry{{Value: "живопись", Confidence: 0.8}}}
	update := Profile{Interests: []Entry{
		{Value: "живопись", Confidence: 0.6},
		{Value: "история", Confidence: 0.75},
	}}

	merged := Merge(base, update)
	if len(merged.Interests) != 2 {
		t.Fatalf("expected 2 interests, got %+v", merged.Interests)
	}
	if merged.Interests[0].Value != "живопись" || merged.Interests[0].Confidence != 0.8 {
		t.Fatalf("per-value max lost: %+v", merged.Interests[0])
	}
	if merged.Interests[1].Value != "история" {
		t.Fatalf("union missing new value: %+v", merged.Interests)
	}
}

func TestMergeDoesNotAliasBase(t *testing.T) {
	base := Profile{Age: entry("30", 0.9, "rules")}
	merged := Merge(base, Profile{})
	merged.Age.Value = "31"
	if base.Age.Value != "30" {
		t.Fatal("merge shares Entry pointers with its input")
	}
}

func TestResolution(t *testing.T) {
	p := Profile{
		Age:       entry("25", 0.9, "rules"),
		Mood:      entry(MoodSad, 0.5, "lexical"), // exactly at threshold: not resolved
		Interests: []Entry{{Value: "аниме", Confidence: VerbatimConfidence}},
	}

	if !p.Resolved(FieldAge) {
		t.Error("age at 0.9 should be resolved")
	}
	if p.Resolved(FieldMood) {
		t.Error("confidence 0.5 must not count as resolved")
	}
	if p.Resolved(FieldInterests) {
		t.Error("verbatim-only interests must not count as resolved")
	}

	unresolved := p.UnresolvedInformative()
	want := []Field{FieldCompanionship, FieldInterests, FieldMood}
	if !reflect.DeepEqual(unresolved, want) {
		t.Fatalf("unresolved = %v, want %v", unresolved, want)
	}
}

func TestAgeYears(t *testing.T) {
	p := Profile{Age: entry("25", 0.9, "rules")}
	years, ok := p.AgeYears()
	if !ok || years != 25 {
		t.Fatalf("AgeYears = %d, %v", years, ok)
	}
	if _, ok := (Profile{}).AgeYears(); ok {
		t.Fatal("empty profile reported an age")
	}
}

func TestCanonicalInterest(t *testing.T) {
	v := NewVocabulary()

	cases := []struct {
		token string
		tag   string
		kind  MatchKind
	}{
		{"фотография", "фотография", MatchVocabulary},
		{"Фотография!", "фотография", MatchVocabulary},
		{"современное искусство", "современное искусство", MatchVocabulary},
		{"фото", "фотография", MatchAlias},
		{"картины", "живопись", MatchAlias},
		{"модерн", "современное искусство", MatchAlias},
		{"живописи", "живопись", MatchFuzzy},   // inflected form
		{"фотографию", "фотография", MatchFuzzy}, // accusative
		{"истории", "история", MatchFuzzy},
		{"аниме", "", MatchNone},
		{"фот", "", MatchNone}, // too short for fuzzy, not an alias
	}
	for _, tc := range cases {
		tag, kind := v.CanonicalInterest(tc.token)
		if tag != tc.tag || kind != tc.kind {
			t.Errorf("CanonicalInterest(%q) = (%q, %d), want (%q, %d)", tc.token, tag, kind, tc.tag, tc.kind)
		}
	}
}

func TestCanonicalMoodAndCompanionship(t *testing.T) {
	v := NewVocabulary()

	if m, ok := v.CanonicalMood("грустно"); !ok || m != MoodSad {
		t.Errorf("грустно -> %q, %v", m, ok)
	}
	if m, ok := v.CanonicalMood("romantic"); !ok || m != MoodRomantic {
		t.Errorf("romantic -> %q, %v", m, ok)
	}
	if _, ok := v.CanonicalMood("задумчиво"); ok {
		t.Error("unknown mood mapped")
	}

	if c, ok := v.CanonicalCompanionship("девушка"); !ok || c != CompanionPartner {
		t.Errorf("девушка -> %q, %v", c, ok)
	}
	if c, ok := v.CanonicalCompanionship("бабушка"); !ok || c != CompanionGrandparent {
		t.Errorf("бабушка -> %q, %v", c, ok)
	}
	if c, ok := v.CanonicalCompanionship("solo"); !ok || c != CompanionAlone {
		t.Errorf("solo -> %q, %v", c, ok)
	}
}

func TestMoodTag(t *testing.T) {
	if tag, ok := MoodTag(MoodRomantic); !ok || tag != "романтика" {
		t.Fatalf("MoodTag(romantic) = %q, %v", tag, ok)
	}
	if _, ok := MoodTag("angry"); ok {
		t.Fatal("unknown mood has a tag")
	}
}
