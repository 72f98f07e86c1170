// Package extract turns free-text visitor requests into preference
// profiles. Three independently-failing strategies run concurrently over
// the same utterance; a pure fusion reducer folds their evidence into the
// prior profile. A failing strategy degrades its own contribution to
// nothing and never fails extraction as a whole.
package extract

import (
	"context"
	"sort"
	"strings"

	"muza/internal/profile"
)

// Strategy names double as metric labels and evidence provenance.
const (
	StrategyRules      = "rules"
	StrategyLexical    = "lexical"
	StrategyGenerative = "generative"
)

// strategyPriority breaks confidence ties: deterministic beats statistical
// beats generative.
var strategyPriority = map[string]int{
	StrategyRules:      0,
	StrategyLexical:    1,
	StrategyGenerative: 2,
}

// Strategy extracts preference evidence from one utterance. Returned
// evidence may be empty; an error means the strategy contributed nothing
// this round.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, utterance string) ([]profile.Evidence, error)
}

// Fuse reduces an evidence set into the prior profile. Per field (or per
// value for multi-value fields) the highest-confidence evidence above the
// acceptance threshold wins; ties go to the higher-priority strategy.
// Verbatim interest tokens bypass the threshold. Merging with the prior is
// monotonic: resolved knowledge is never downgraded. Pure function.
func Fuse(prior profile.Profile, evidence []profile.Evidence) profile.Profile {
	ordered := make([]profile.Evidence, len(evidence))
	copy(ordered, evidence)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Confidence != ordered[j].Confidence {
			return ordered[i].Confidence > ordered[j].Confidence
		}
		if pi, pj := strategyPriority[ordered[i].Strategy], strategyPriority[ordered[j].Strategy]; pi != pj {
			return pi < pj
		}
		return ordered[i].Value < ordered[j].Value
	})

	var delta profile.Profile
	seenValues := map[profile.Field]map[string]bool{
		profile.FieldInterests:     {},
		profile.FieldAccessibility: {},
	}

	for _, ev := range ordered {
		if ev.Value == "" {
			continue
		}
		admitted := ev.Confidence >= profile.AcceptanceThreshold ||
			(ev.Field == profile.FieldInterests && ev.Verbatim)
		if !admitted {
			continue
		}

		switch ev.Field {
		case profile.FieldAge:
			if delta.Age == nil {
				delta.Age = entryOf(ev)
			}
		case profile.FieldCompanionship:
			if delta.Companionship == nil {
				delta.Companionship = entryOf(ev)
			}
		case profile.FieldMood:
			if delta.Mood == nil {
				delta.Mood = entryOf(ev)
			}
		case profile.FieldInterests:
			key := strings.ToLower(ev.Value)
			if !seenValues[profile.FieldInterests][key] {
				seenValues[profile.FieldInterests][key] = true
				delta.Interests = append(delta.Interests, *entryOf(ev))
			}
		case profile.FieldAccessibility:
			key := strings.ToLower(ev.Value)
			if !seenValues[profile.FieldAccessibility][key] {
				seenValues[profile.FieldAccessibility][key] = true
				delta.Accessibility = append(delta.Accessibility, *entryOf(ev))
			}
		}
	}

	return profile.Merge(prior, delta)
}

func entryOf(ev profile.Evidence) *profile.Entry {
	return &profile.Entry{Value: ev.Value, Confidence: ev.Confidence, Strategy: ev.Strategy}
}
