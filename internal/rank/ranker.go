// Package rank turns raw retrieval candidates into a deterministic,
// filtered, scored shortlist. Filtering is strict (a candidate must
// satisfy every resolved constraint), scoring blends vector similarity
// with tag overlap, and the final order is a total order so identical
// inputs always produce identical rankings.
package rank

import (
	"context"
	"sort"
	"strings"
	"time"

	"muza/internal/catalog"
	"muza/internal/index"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/profile"
)

// DefaultTopK is how many recommendations a request yields.
const DefaultTopK = 5

// Composite score weights. They sum to 1 so the composite stays in [0,1].
const (
	weightSimilarity = 0.6
	weightTagMatch   = 0.4
)

// audienceRequirements maps resolved companionship to the audience tags a
// candidate must carry, all of them. These are derived minimums, narrower
// than the preference sets used for query expansion.
var audienceRequirements = map[string][]string{
	profile.CompanionChild:       {"семья"},
	profile.CompanionGrandparent: {"пожилые"},
	profile.CompanionPartner:     {"взрослые"},
	profile.CompanionParent:      {"взрослые"},
	profile.CompanionFriends:     {"взрослые"},
	profile.CompanionAlone:       {"взрослые"},
}

// accessibilityFacilities lists the candidate facilities that satisfy a
// resolved accessibility need. Any one facility satisfies the need; every
// resolved need must be satisfied.
var accessibilityFacilities = map[string][]string{
	profile.AccessWheelchair: {"пандусы", "лифт", profile.AccessWheelchair},
	profile.AccessLowVision:  {"аудиогид", "тактильные экспонаты", profile.AccessLowVision},
}

// Ranked is an annotated copy of a retrieval candidate. The embedded
// candidate keeps its raw similarity untouched for auditing.
type Ranked struct {
	index.Candidate
	// Composite is weightSimilarity*similarity + weightTagMatch*overlap.
	Composite float64
	// MatchedTags are the profile tags found among the candidate's tags,
	// in profile order. Drives the per-candidate justification.
	MatchedTags []string
	// Position is the 1-based rank after sorting and truncation.
	Position int
}

// Config wires a Ranker.
type Config struct {
	TopK int
	// Now supplies the ranking clock; defaults to time.Now.
	Now     func() time.Time
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
}

// Ranker filters and orders candidates for one profile. Stateless across
// requests, safe for concurrent use.
type Ranker struct {
	topK    int
	now     func() time.Time
	log     logging.Logger
	metrics *observability.MetricsCollector
}

func NewRanker(config Config) *Ranker {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Ranker{
		topK:    config.TopK,
		now:     config.Now,
		log:     logging.OrNop(config.Logger),
		metrics: config.Metrics,
	}
}

// Rank applies hard filters, scores the survivors, and returns them in
// deterministic order truncated to top-k. Malformed candidates are skipped
// and logged; Rank itself never fails. Fewer survivors than top-k is a
// normal outcome, not an error.
func (r *Ranker) Rank(ctx context.Context, p profile.Profile, candidates []index.Candidate) []Ranked {
	log := logging.FromContext(ctx, r.log)
	today := r.now()

	profileTags := profileTagSet(p)

	var ranked []Ranked
	for _, c := range candidates {
		e := c.Exhibition
		if err := e.Validate(); err != nil {
			log.Warn("skipping malformed candidate: %v", err)
			continue
		}
		if !e.RunsOn(today) {
			log.Debug("dropping %s: not running on %s", e.ID, today.Format(catalog.DateLayout))
			continue
		}
		if !matchesAudience(p, e) {
			log.Debug("dropping %s: audience mismatch", e.ID)
			continue
		}
		if !matchesAccessibility(p, e) {
			log.Debug("dropping %s: accessibility mismatch", e.ID)
			continue
		}

		matched := matchedTags(profileTags, e.Tags)
		overlap := 0.0
		if len(profileTags) > 0 {
			overlap = float64(len(matched)) / float64(len(profileTags))
		}
		ranked = append(ranked, Ranked{
			Candidate:   c,
			Composite:   weightSimilarity*c.Similarity + weightTagMatch*overlap,
			MatchedTags: matched,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite > ranked[j].Composite
		}
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Exhibition.ID < ranked[j].Exhibition.ID
	})

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	for i := range ranked {
		ranked[i].Position = i + 1
	}

	if r.metrics != nil {
		r.metrics.RecordCandidates(ctx, "filtered", len(candidates)-len(ranked))
		r.metrics.RecordCandidates(ctx, "ranked", len(ranked))
	}
	log.Debug("ranked %d of %d candidates", len(ranked), len(candidates))
	return ranked
}

// profileTagSet is the ordered tag list driving overlap: resolved interests
// plus the mood tag when mood is resolved. Verbatim low-confidence interests
// stay out; they steer search, not scoring.
func profileTagSet(p profile.Profile) []string {
	tags := p.ResolvedInterests()
	if p.Resolved(profile.FieldMood) {
		if tag, ok := profile.MoodTag(p.Mood.Value); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// matchedTags returns the profile tags present among the candidate tags,
// case-insensitively, preserving profile order.
func matchedTags(profileTags, candidateTags []string) []string {
	if len(profileTags) == 0 || len(candidateTags) == 0 {
		return nil
	}
	have := make(map[string]bool, len(candidateTags))
	for _, t := range candidateTags {
		have[strings.ToLower(strings.TrimSpace(t))] = true
	}
	var matched []string
	for _, t := range profileTags {
		if have[strings.ToLower(strings.TrimSpace(t))] {
			matched = append(matched, t)
		}
	}
	return matched
}

// matchesAudience enforces the audience constraint derived from resolved
// companionship. Unresolved companionship matches everything, and an
// exhibition that declares no audience is open to everyone.
func matchesAudience(p profile.Profile, e catalog.Exhibition) bool {
	if !p.Resolved(profile.FieldCompanionship) || len(e.Audience) == 0 {
		return true
	}
	required, ok := audienceRequirements[p.Companionship.Value]
	if !ok {
		return true
	}
	have := make(map[string]bool, len(e.Audience))
	for _, a := range e.Audience {
		have[strings.ToLower(strings.TrimSpace(a))] = true
	}
	for _, tag := range required {
		if !have[tag] {
			return false
		}
	}
	return true
}

// matchesAccessibility checks every resolved accessibility need against the
// candidate's facilities. A need with no known facility mapping requires the
// literal tag itself.
func matchesAccessibility(p profile.Profile, e catalog.Exhibition) bool {
	needs := p.ResolvedAccessibility()
	if len(needs) == 0 {
		return true
	}
	have := make(map[string]bool, len(e.Accessibility))
	for _, a := range e.Accessibility {
		have[strings.ToLower(strings.TrimSpace(a))] = true
	}
	for _, need := range needs {
		facilities, ok := accessibilityFacilities[need]
		if !ok {
			facilities = []string{need}
		}
		satisfied := false
		for _, f := range facilities {
			if have[strings.ToLower(f)] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}
