// Package engine wires the full request pipeline: extract preferences,
// clarify gaps through the bounded dialogue, retrieve candidates with an
// overfetched vector query, rank, synthesize. The engine itself is
// stateless; callers keep the conversation and profile between turns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"muza/internal/dialogue"
	"muza/internal/explain"
	"muza/internal/extract"
	"muza/internal/index"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/profile"
	"muza/internal/rank"
)

const (
	// overfetchFactor widens retrieval so hard filters have slack to cut.
	overfetchFactor = 2
	// broadenedPenalty down-weights candidates from the fallback query so
	// they never outrank direct hits.
	broadenedPenalty = 0.9
)

// ErrNotAwaiting is returned by Answer when the conversation has no
// question out.
var ErrNotAwaiting = errors.New("conversation is not awaiting an answer")

// defaultSearchTerms anchor the query when nothing at all is known.
var defaultSearchTerms = []string{"выставка", "музей", "искусство"}

// moodSearchTerms expand a resolved mood into retrieval vocabulary.
var moodSearchTerms = map[string][]string{
	profile.MoodSad:      {"спокойный", "размышляющий", "тихий"},
	profile.MoodHappy:    {"веселый", "яркий", "позитивный"},
	profile.MoodRomantic: {"романтический", "интимный", "уютный"},
	profile.MoodCalm:     {"спокойный", "медитативный", "гармоничный"},
}

// companionSearchTerms expand resolved companionship the same way.
var companionSearchTerms = map[string][]string{
	profile.CompanionPartner:     {"романтика", "для двоих", "интимный"},
	profile.CompanionGrandparent: {"семейный", "доступный", "классический"},
	profile.CompanionParent:      {"семейный", "для всех возрастов"},
	profile.CompanionFriends:     {"интересный", "обсуждаемый"},
	profile.CompanionChild:       {"детский", "интерактивный", "образовательный"},
	profile.CompanionAlone:       {"индивидуальный", "самостоятельный"},
}

// Config wires an Engine. Every component is required except Logger,
// Metrics and TopK.
type Config struct {
	Extractor   *extract.Extractor
	Dialogue    *dialogue.Controller
	Index       index.Index
	Ranker      *rank.Ranker
	Synthesizer *explain.Synthesizer
	TopK        int
	Logger      logging.Logger
	Metrics     *observability.MetricsCollector
}

// Engine runs recommendation requests. Safe for concurrent use; all
// per-session state travels in Turn values.
type Engine struct {
	extractor   *extract.Extractor
	dialogue    *dialogue.Controller
	index       index.Index
	ranker      *rank.Ranker
	synthesizer *explain.Synthesizer
	topK        int
	log         logging.Logger
	metrics     *observability.MetricsCollector
	im          *observability.IndexMetrics
}

func New(config Config) (*Engine, error) {
	if config.Extractor == nil || config.Dialogue == nil || config.Index == nil ||
		config.Ranker == nil || config.Synthesizer == nil {
		return nil, fmt.Errorf("engine needs extractor, dialogue controller, index, ranker and synthesizer")
	}
	topK := config.TopK
	if topK <= 0 {
		topK = rank.DefaultTopK
	}
	return &Engine{
		extractor:   config.Extractor,
		dialogue:    config.Dialogue,
		index:       config.Index,
		ranker:      config.Ranker,
		synthesizer: config.Synthesizer,
		topK:        topK,
		log:         logging.OrNop(config.Logger),
		metrics:     config.Metrics,
		im:          observability.NewIndexMetrics(),
	}, nil
}

// Turn is the engine's reply to one piece of user input: a clarifying
// question while the dialogue runs, the final result once it terminates.
type Turn struct {
	Conversation dialogue.Conversation
	Profile      profile.Profile
	// Degraded names extraction strategies that failed this turn.
	Degraded []string
	Question *dialogue.Question
	Result   *explain.Result
}

// Terminal reports whether the turn carries the final result.
func (t Turn) Terminal() bool { return t.Result != nil }

// Recommend runs the one-shot pipeline. No questions are asked; fields
// the utterance leaves unresolved simply broaden the search. The returned
// turn is always terminal.
func (e *Engine) Recommend(ctx context.Context, utterance string) (Turn, error) {
	started := time.Now()
	extracted := e.extractor.Extract(ctx, utterance, profile.Profile{})
	result, err := e.finish(ctx, extracted.Profile, utterance)

	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordRequest(ctx, "pipeline", status, time.Since(started))
	}
	if err != nil {
		return Turn{}, err
	}
	result.Degraded = extracted.Degraded
	return Turn{
		Profile:  extracted.Profile,
		Degraded: extracted.Degraded,
		Result:   &result,
	}, nil
}

// Start opens a clarification session over the first utterance. The turn
// either asks the first question or, when the utterance already resolves
// every informative field, carries the result immediately.
func (e *Engine) Start(ctx context.Context, utterance string) (Turn, error) {
	conv := dialogue.NewConversation(utterance)
	extracted := e.extractor.Extract(ctx, utterance, profile.Profile{})
	return e.advance(ctx, conv, extracted)
}

// Answer feeds the visitor's reply into a waiting conversation,
// re-extracts over the combined text with the session profile as prior,
// and advances the dialogue.
func (e *Engine) Answer(ctx context.Context, conv dialogue.Conversation, p profile.Profile, answer string) (Turn, error) {
	if conv.State != dialogue.StateAwaitingAnswer {
		return Turn{}, fmt.Errorf("%w (state %s)", ErrNotAwaiting, conv.State)
	}
	conv = e.dialogue.Integrate(conv, answer)
	extracted := e.extractor.Extract(ctx, conv.CombinedText(), p)
	return e.advance(ctx, conv, extracted)
}

func (e *Engine) advance(ctx context.Context, conv dialogue.Conversation, extracted extract.Result) (Turn, error) {
	conv, question := e.dialogue.Next(ctx, conv, extracted.Profile)
	turn := Turn{
		Conversation: conv,
		Profile:      extracted.Profile,
		Degraded:     extracted.Degraded,
		Question:     question,
	}
	if question != nil {
		return turn, nil
	}

	result, err := e.finish(ctx, extracted.Profile, conv.Utterance)
	if err != nil {
		return Turn{}, err
	}
	result.Degraded = extracted.Degraded
	turn.Result = &result
	return turn, nil
}

func (e *Engine) finish(ctx context.Context, p profile.Profile, utterance string) (explain.Result, error) {
	ranked, err := e.search(ctx, p, utterance)
	if err != nil {
		return explain.Result{}, err
	}
	return e.synthesizer.Synthesize(ctx, p, ranked), nil
}

// search retrieves an overfetched candidate set, ranks it, and when every
// candidate was filtered out retries once with the broadened query under a
// similarity penalty. Index failures propagate; an empty shortlist does not.
func (e *Engine) search(ctx context.Context, p profile.Profile, utterance string) ([]rank.Ranked, error) {
	log := logging.FromContext(ctx, e.log)

	text := searchText(p, utterance)
	log.Debug("retrieval query: %s", text)
	candidates, err := e.index.Query(ctx, text, e.topK*overfetchFactor)
	if err != nil {
		return nil, err
	}
	ranked := e.ranker.Rank(ctx, p, candidates)
	if len(ranked) > 0 {
		return ranked, nil
	}

	broadened := broadenedText(p)
	if broadened == text {
		return nil, nil
	}
	log.Info("no candidates survived filtering, retrying with broadened query: %s", broadened)
	e.im.RecordQueryFallback()
	fallback, err := e.index.Query(ctx, broadened, e.topK*overfetchFactor)
	if err != nil {
		return nil, err
	}
	for i := range fallback {
		fallback[i].Similarity *= broadenedPenalty
	}
	return e.ranker.Rank(ctx, p, fallback), nil
}

// searchText builds the retrieval query: every extracted interest (verbatim
// ones included), plus mood and companionship vocabulary. With an empty
// profile the raw utterance itself is the query.
func searchText(p profile.Profile, utterance string) string {
	var parts []string
	parts = append(parts, p.AllInterests()...)
	if p.Resolved(profile.FieldMood) {
		parts = append(parts, moodSearchTerms[p.Mood.Value]...)
	}
	if p.Resolved(profile.FieldCompanionship) {
		parts = append(parts, companionSearchTerms[p.Companionship.Value]...)
	}
	if len(parts) == 0 {
		if s := strings.TrimSpace(utterance); s != "" {
			return s
		}
		return strings.Join(defaultSearchTerms, " ")
	}
	return strings.Join(parts, " ")
}

// broadenedText keeps only resolved interest tags; no mood or
// companionship vocabulary.
func broadenedText(p profile.Profile) string {
	tags := p.ResolvedInterests()
	if len(tags) == 0 {
		return strings.Join(defaultSearchTerms, " ")
	}
	return strings.Join(tags, " ")
}
