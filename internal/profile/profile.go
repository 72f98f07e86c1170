// Package profile holds the preference profile model: what the system
// currently knows about a visitor, with per-field confidence and provenance.
// Profiles are immutable values; Merge produces a new profile and never
// regresses a resolved field.
package profile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field identifies one dimension of a preference profile.
type Field string

const (
	FieldAge           Field = "age"
	FieldCompanionship Field = "companionship"
	FieldMood          Field = "mood"
	FieldInterests     Field = "interests"
	FieldAccessibility Field = "accessibility"
)

// ResolutionThreshold is the confidence a field must strictly exceed to
// count as resolved. Values at or below it stay "unknown" for filtering
// and clarification purposes but still enrich search text.
const ResolutionThreshold = 0.5

// AcceptanceThreshold is the minimum confidence a strategy's evidence
// needs to be admitted into fusion. Verbatim interest tokens bypass it.
const AcceptanceThreshold = 0.5

// VerbatimConfidence is assigned to unmapped free-text interest tokens
// kept verbatim. Below resolution, so they never satisfy clarification.
const VerbatimConfidence = 0.4

// InformativeFields lists the clarifiable dimensions in question priority
// order. Unresolved informative fields broaden search and down-weight
// recommendation confidence.
var InformativeFields = []Field{FieldCompanionship, FieldInterests, FieldMood, FieldAge}

// Canonical companionship values.
const (
	CompanionPartner     = "partner"
	CompanionChild       = "child"
	CompanionParent      = "parent"
	CompanionGrandparent = "grandparent"
	CompanionFriends     = "friends"
	CompanionAlone       = "alone"
)

// Canonical mood values.
const (
	MoodSad      = "sad"
	MoodHappy    = "happy"
	MoodRomantic = "romantic"
	MoodCalm     = "calm"
)

// Canonical accessibility values.
const (
	AccessWheelchair = "wheelchair"
	AccessLowVision  = "low-vision"
)

// Evidence is one extraction finding for one field. Multi-value fields
// (interests, accessibility) carry one Evidence per value.
type Evidence struct {
	Field      Field   `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
	// Span is the source fragment the value was derived from, when known.
	Span string `json:"span,omitempty"`
	// Verbatim marks an unmapped free-text interest kept below the
	// acceptance threshold.
	Verbatim bool `json:"verbatim,omitempty"`
}

func (e Evidence) String() string {
	return fmt.Sprintf("%s=%s (%.2f, %s)", e.Field, e.Value, e.Confidence, e.Strategy)
}

// Entry is a profile value with the provenance of its best evidence.
type Entry struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy,omitempty"`
}

// Resolved reports whether the entry's confidence clears the resolution
// threshold.
func (v Entry) Resolved() bool {
	return v.Confidence > ResolutionThreshold
}

// Profile is the accumulated picture of a visitor's preferences. The zero
// value is an empty profile: every field unknown.
type Profile struct {
	Age           *Entry  `json:"age,omitempty"` // Value holds decimal years
	Companionship *Entry  `json:"companionship,omitempty"`
	Mood          *Entry  `json:"mood,omitempty"`
	Interests     []Entry `json:"interests,omitempty"`
	Accessibility []Entry `json:"accessibility,omitempty"`
}

// AgeYears returns the age in years when the age field carries a parsable
// value, resolved or not.
func (p Profile) AgeYears() (int, bool) {
	if p.Age == nil {
		return 0, false
	}
	years, err := strconv.Atoi(p.Age.Value)
	if err != nil {
		return 0, false
	}
	return years, true
}

// Resolved reports whether the given field is resolved. Multi-value fields
// count as resolved when at least one entry clears the threshold.
func (p Profile) Resolved(f Field) bool {
	switch f {
	case FieldAge:
		return p.Age != nil && p.Age.Resolved()
	case FieldCompanionship:
		return p.Companionship != nil && p.Companionship.Resolved()
	case FieldMood:
		return p.Mood != nil && p.Mood.Resolved()
	case FieldInterests:
		return len(resolvedValues(p.Interests)) > 0
	case FieldAccessibility:
		return len(resolvedValues(p.Accessibility)) > 0
	}
	return false
}

// UnresolvedInformative lists informative fields still unresolved, in
// clarification priority order.
func (p Profile) UnresolvedInformative() []Field {
	var out []Field
	for _, f := range InformativeFields {
		if !p.Resolved(f) {
			out = append(out, f)
		}
	}
	return out
}

// ResolvedInterests returns interest values above the resolution threshold,
// in stored order.
func (p Profile) ResolvedInterests() []string {
	return resolvedValues(p.Interests)
}

// ResolvedAccessibility returns accessibility values above the resolution
// threshold.
func (p Profile) ResolvedAccessibility() []string {
	return resolvedValues(p.Accessibility)
}

// AllInterests returns every interest value, including verbatim
// low-confidence tokens. Used for search text, never for filtering.
func (p Profile) AllInterests() []string {
	out := make([]string, 0, len(p.Interests))
	for _, v := range p.Interests {
		out = append(out, v.Value)
	}
	return out
}

// Empty reports whether nothing at all is known.
func (p Profile) Empty() bool {
	return p.Age == nil && p.Companionship == nil && p.Mood == nil &&
		len(p.Interests) == 0 && len(p.Accessibility) == 0
}

func resolvedValues(vs []Entry) []string {
	var out []string
	for _, v := range vs {
		if v.Resolved() {
			out = append(out, v.Value)
		}
	}
	return out
}

// Merge folds update into base without losing resolved knowledge: a single
// field is replaced only by strictly higher confidence, multi-value fields
// take the per-value confidence maximum. Merge(p, p) == p.
func Merge(base, update Profile) Profile {
	out := Profile{
		Age:           mergeEntry(base.Age, update.Age),
		Companionship: mergeEntry(base.Companionship, update.Companionship),
		Mood:          mergeEntry(base.Mood, update.Mood),
		Interests:     mergeEntries(base.Interests, update.Interests),
		Accessibility: mergeEntries(base.Accessibility, update.Accessibility),
	}
	return out
}

func mergeEntry(base, update *Entry) *Entry {
	if update == nil {
		return cloneEntry(base)
	}
	if base == nil || update.Confidence > base.Confidence {
		return cloneEntry(update)
	}
	return cloneEntry(base)
}

func cloneEntry(v *Entry) *Entry {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// mergeEntries unions two value sets, keeping the highest-confidence entry
// per value. Result is canonically ordered: confidence desc, value asc.
func mergeEntries(base, update []Entry) []Entry {
	if len(base) == 0 && len(update) == 0 {
		return nil
	}
	best := make(map[string]Entry, len(base)+len(update))
	for _, v := range append(append([]Entry{}, base...), update...) {
		key := strings.ToLower(v.Value)
		if cur, ok := best[key]; !ok || v.Confidence > cur.Confidence {
			best[key] = v
		}
	}
	out := make([]Entry, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Value < out[j].Value
	})
	return out
}
