package rank

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"muza/internal/catalog"
	"muza/internal/index"
	"muza/internal/profile"
)

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
}

func testRanker(topK int) *Ranker {
	return NewRanker(Config{TopK: topK, Now: fixedNow})
}

func candidate(id string, similarity float64, tags ...string) index.Candidate {
	return index.Candidate{
		Exhibition: catalog.Exhibition{
			ID:    id,
			Title: "Выставка " + id,
			Tags:  tags,
		},
		Similarity: similarity,
	}
}

func interestProfile(values ...string) profile.Profile {
	var p profile.Profile
	for _, v := range values {
		p.Interests = append(p.Interests, profile.Entry{Value: v, Confidence: 0.8, Strategy: "rules"})
	}
	return p
}

func TestRankCompositePrefersTagOverlap(t *testing.T) {
	p := interestProfile("фотография", "интерактив")
	candidates := []index.Candidate{
		candidate("x-2", 0.9, "космос", "наука"),
		candidate("x-1", 0.8, "фотография", "интерактив", "история"),
	}

	got := testRanker(5).Rank(context.Background(), p, candidates)
	if len(got) != 2 {
		t.Fatalf("expected 2 ranked candidates, got %d", len(got))
	}
	if got[0].Exhibition.ID != "x-1" || got[1].Exhibition.ID != "x-2" {
		t.Fatalf("tag overlap must outrank raw similarity: %s, %s",
			got[0].Exhibition.ID, got[1].Exhibition.ID)
	}
	if math.Abs(got[0].Composite-0.88) > 1e-9 {
		t.Fatalf("expected composite 0.88, got %f", got[0].Composite)
	}
	if math.Abs(got[1].Composite-0.54) > 1e-9 {
		t.Fatalf("expected composite 0.54, got %f", got[1].Composite)
	}
	if got[0].Similarity != 0.8 {
		t.Fatalf("raw similarity must be preserved, got %f", got[0].Similarity)
	}
	if !reflect.DeepEqual(got[0].MatchedTags, []string{"фотография", "интерактив"}) {
		t.Fatalf("unexpected matched tags: %v", got[0].MatchedTags)
	}
	if got[0].Position != 1 || got[1].Position != 2 {
		t.Fatalf("positions not assigned: %d, %d", got[0].Position, got[1].Position)
	}
}

func TestRankMoodTagCountsInOverlap(t *testing.T) {
	p := interestProfile("фотография")
	p.Mood = &profile.Entry{Value: profile.MoodRomantic, Confidence: 0.8, Strategy: "rules"}

	got := testRanker(5).Rank(context.Background(), p,
		[]index.Candidate{candidate("r-1", 0.5, "фотография", "романтика")})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].MatchedTags, []string{"фотография", "романтика"}) {
		t.Fatalf("mood tag missing from overlap: %v", got[0].MatchedTags)
	}
	// Full overlap: 0.6*0.5 + 0.4*1.0.
	if math.Abs(got[0].Composite-0.7) > 1e-9 {
		t.Fatalf("expected composite 0.7, got %f", got[0].Composite)
	}
}

func TestRankEmptyProfileScoresBySimilarity(t *testing.T) {
	candidates := []index.Candidate{
		candidate("a-1", 0.4, "живопись"),
		candidate("b-1", 0.9, "космос"),
	}
	got := testRanker(5).Rank(context.Background(), profile.Profile{}, candidates)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Exhibition.ID != "b-1" {
		t.Fatalf("expected similarity order, got %s first", got[0].Exhibition.ID)
	}
	if len(got[0].MatchedTags) != 0 {
		t.Fatalf("empty profile cannot match tags: %v", got[0].MatchedTags)
	}
	if math.Abs(got[0].Composite-0.6*0.9) > 1e-9 {
		t.Fatalf("overlap must be zero for empty profile, composite %f", got[0].Composite)
	}
}

func TestRankTieBreaksByID(t *testing.T) {
	candidates := []index.Candidate{
		candidate("b-1", 0.8, "живопись"),
		candidate("a-1", 0.8, "живопись"),
	}
	got := testRanker(5).Rank(context.Background(), profile.Profile{}, candidates)
	if got[0].Exhibition.ID != "a-1" || got[1].Exhibition.ID != "b-1" {
		t.Fatalf("equal scores must order by ID: %s, %s",
			got[0].Exhibition.ID, got[1].Exhibition.ID)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	p := interestProfile("фотография", "история")
	candidates := []index.Candidate{
		candidate("c-3", 0.72, "история"),
		candidate("c-1", 0.55, "фотография", "история"),
		candidate("c-2", 0.81, "космос"),
	}
	ranker := testRanker(5)
	first := ranker.Rank(context.Background(), p, candidates)
	second := ranker.Rank(context.Background(), p, candidates)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs produced different rankings")
	}
}

func TestRankFiltersByDate(t *testing.T) {
	running := candidate("run-1", 0.5)
	running.Exhibition.StartDate = catalog.NewDate(2026, 8, 1)
	running.Exhibition.EndDate = catalog.NewDate(2026, 9, 1) // ends today, inclusive

	ended := candidate("end-1", 0.9)
	ended.Exhibition.StartDate = catalog.NewDate(2026, 7, 1)
	ended.Exhibition.EndDate = catalog.NewDate(2026, 8, 31)

	upcoming := candidate("up-1", 0.9)
	upcoming.Exhibition.StartDate = catalog.NewDate(2026, 9, 2)

	open := candidate("open-1", 0.4)

	got := testRanker(5).Rank(context.Background(), profile.Profile{},
		[]index.Candidate{running, ended, upcoming, open})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates running today, got %d", len(got))
	}
	if got[0].Exhibition.ID != "run-1" || got[1].Exhibition.ID != "open-1" {
		t.Fatalf("wrong survivors: %s, %s", got[0].Exhibition.ID, got[1].Exhibition.ID)
	}
}

func TestRankAudienceFilter(t *testing.T) {
	family := candidate("fam-1", 0.5)
	family.Exhibition.Audience = []string{"семья", "дети", "взрослые"}
	adults := candidate("adult-1", 0.9)
	adults.Exhibition.Audience = []string{"взрослые", "молодежь"}

	withChild := profile.Profile{
		Companionship: &profile.Entry{Value: profile.CompanionChild, Confidence: 0.85, Strategy: "rules"},
	}
	got := testRanker(5).Rank(context.Background(), withChild,
		[]index.Candidate{family, adults})
	if len(got) != 1 || got[0].Exhibition.ID != "fam-1" {
		t.Fatalf("child visit must keep only family-audience candidates: %+v", got)
	}

	// Unresolved companionship applies no filter.
	hunch := profile.Profile{
		Companionship: &profile.Entry{Value: profile.CompanionChild, Confidence: 0.4, Strategy: "generative"},
	}
	got = testRanker(5).Rank(context.Background(), hunch,
		[]index.Candidate{family, adults})
	if len(got) != 2 {
		t.Fatalf("unresolved companionship must not filter, got %d", len(got))
	}

	withGrandparent := profile.Profile{
		Companionship: &profile.Entry{Value: profile.CompanionGrandparent, Confidence: 0.85, Strategy: "rules"},
	}
	seniors := candidate("sen-1", 0.3)
	seniors.Exhibition.Audience = []string{"взрослые", "пожилые"}
	got = testRanker(5).Rank(context.Background(), withGrandparent,
		[]index.Candidate{family, adults, seniors})
	if len(got) != 1 || got[0].Exhibition.ID != "sen-1" {
		t.Fatalf("grandparent visit must require senior audience: %+v", got)
	}

	// No declared audience means open to everyone.
	open := candidate("open-1", 0.2)
	open.Exhibition.Audience = nil
	got = testRanker(5).Rank(context.Background(), withChild,
		[]index.Candidate{adults, open})
	if len(got) != 1 || got[0].Exhibition.ID != "open-1" {
		t.Fatalf("undeclared audience must pass any companionship: %+v", got)
	}
}

func TestRankAccessibilityAllNeedsMustMatch(t *testing.T) {
	p := profile.Profile{
		Accessibility: []profile.Entry{
			{Value: profile.AccessWheelchair, Confidence: 0.8, Strategy: "rules"},
			{Value: profile.AccessLowVision, Confidence: 0.8, Strategy: "rules"},
		},
	}

	both := candidate("both-1", 0.4)
	both.Exhibition.Accessibility = []string{"пандусы", "аудиогид"}
	rampOnly := candidate("ramp-1", 0.9)
	rampOnly.Exhibition.Accessibility = []string{"пандусы"}
	elevatorTactile := candidate("elev-1", 0.5)
	elevatorTactile.Exhibition.Accessibility = []string{"лифт", "тактильные экспонаты"}
	none := candidate("none-1", 0.95)

	got := testRanker(5).Rank(context.Background(), p,
		[]index.Candidate{both, rampOnly, elevatorTactile, none})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates satisfying both needs, got %d", len(got))
	}
	ids := map[string]bool{got[0].Exhibition.ID: true, got[1].Exhibition.ID: true}
	if !ids["both-1"] || !ids["elev-1"] {
		t.Fatalf("wrong survivors: %v", ids)
	}
}

func TestRankSkipsMalformedCandidates(t *testing.T) {
	valid := candidate("ok-1", 0.5, "живопись")
	noTitle := index.Candidate{
		Exhibition: catalog.Exhibition{ID: "bad-1"},
		Similarity: 0.99,
	}
	got := testRanker(5).Rank(context.Background(), profile.Profile{},
		[]index.Candidate{noTitle, valid})
	if len(got) != 1 || got[0].Exhibition.ID != "ok-1" {
		t.Fatalf("malformed candidate must be skipped, got %+v", got)
	}
}

func TestRankTruncatesToTopK(t *testing.T) {
	var candidates []index.Candidate
	for _, id := range []string{"t-1", "t-2", "t-3", "t-4", "t-5", "t-6", "t-7"} {
		candidates = append(candidates, candidate(id, 0.5))
	}
	got := testRanker(3).Rank(context.Background(), profile.Profile{}, candidates)
	if len(got) != 3 {
		t.Fatalf("expected top-3, got %d", len(got))
	}
	for i, r := range got {
		if r.Position != i+1 {
			t.Fatalf("position %d not assigned, got %d", i+1, r.Position)
		}
	}
}

func TestRankFewerCandidatesThanTopK(t *testing.T) {
	got := testRanker(5).Rank(context.Background(), profile.Profile{},
		[]index.Candidate{candidate("only-1", 0.5)})
	if len(got) != 1 {
		t.Fatalf("expected the single candidate back, got %d", len(got))
	}
}
