// Package dialogue drives the bounded clarification loop. The controller
// is an explicit state machine: a Conversation value and the current
// profile go in, an updated Conversation and an optional question come
// out. Nothing blocks waiting for the visitor; the caller owns the wait
// between AWAITING_ANSWER and the next turn, so a controller instance is
// safe to share across sessions.
package dialogue

import (
	"context"
	"strings"

	"muza/internal/llm"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/profile"
	"muza/internal/prompts"
)

// State names one phase of the clarification loop.
type State string

const (
	// StateNeedsInfo means the controller has yet to decide whether to ask.
	StateNeedsInfo State = "NEEDS_INFO"
	// StateAwaitingAnswer means a question is out and the next visitor
	// message answers it.
	StateAwaitingAnswer State = "AWAITING_ANSWER"
	// StateSatisfied means every informative field resolved.
	StateSatisfied State = "SATISFIED"
	// StateExhausted means the round budget ran out with fields still
	// open. Search proceeds with broadened filters, never blocks.
	StateExhausted State = "EXHAUSTED"
)

// Terminal reports whether the loop is done. Both terminal states mean
// "proceed to search".
func (s State) Terminal() bool {
	return s == StateSatisfied || s == StateExhausted
}

// DefaultMaxRounds bounds the number of clarifying questions per session.
const DefaultMaxRounds = 2

// Exchange is one completed question/answer pair.
type Exchange struct {
	Field    profile.Field `json:"field"`
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
}

// Conversation is the dialogue state of one session, passed in and out of
// the controller. Start with NewConversation; the zero value is unusable.
type Conversation struct {
	State           State           `json:"state"`
	Round           int             `json:"round"`
	Utterance       string          `json:"utterance"`
	Asked           []profile.Field `json:"asked,omitempty"`
	PendingField    profile.Field   `json:"pending_field,omitempty"`
	PendingQuestion string          `json:"pending_question,omitempty"`
	Exchanges       []Exchange      `json:"exchanges,omitempty"`
}

// NewConversation starts a dialogue over the visitor's opening request.
func NewConversation(utterance string) Conversation {
	return Conversation{State: StateNeedsInfo, Utterance: strings.TrimSpace(utterance)}
}

// CombinedText is the original request plus every answer so far. Each
// round's extraction re-runs over this text with the session profile as
// prior, so late answers can only add knowledge.
func (c Conversation) CombinedText() string {
	parts := make([]string, 0, len(c.Exchanges)+1)
	if c.Utterance != "" {
		parts = append(parts, c.Utterance)
	}
	for _, ex := range c.Exchanges {
		if answer := strings.TrimSpace(ex.Answer); answer != "" {
			parts = append(parts, answer)
		}
	}
	return strings.Join(parts, ". ")
}

func (c Conversation) askedAbout(f profile.Field) bool {
	for _, a := range c.Asked {
		if a == f {
			return true
		}
	}
	return false
}

// Question is one clarifying question for the visitor.
type Question struct {
	Field profile.Field `json:"field"`
	Text  string        `json:"text"`
	Round int           `json:"round"`
}

// Config wires a Controller.
type Config struct {
	// MaxRounds per session; DefaultMaxRounds when zero.
	MaxRounds int
	// Phraser optionally re-words the canned questions. Nil keeps the
	// templates as-is.
	Phraser llm.CompletionClient
	Prompts *prompts.PromptLoader
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
}

// Controller decides whether to ask, what to ask, and when to stop. It
// holds no per-session state.
type Controller struct {
	maxRounds int
	phraser   llm.CompletionClient
	prompts   *prompts.PromptLoader
	log       logging.Logger
	metrics   *observability.MetricsCollector
}

// NewController builds a Controller from config.
func NewController(config Config) *Controller {
	maxRounds := config.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Controller{
		maxRounds: maxRounds,
		phraser:   config.Phraser,
		prompts:   config.Prompts,
		log:       logging.OrNop(config.Logger),
		metrics:   config.Metrics,
	}
}

// Next advances a NEEDS_INFO conversation against the current profile:
// either a question comes out and the state moves to AWAITING_ANSWER, or
// the conversation terminates and the question is nil. Each field is
// asked at most once per session and at most MaxRounds questions are ever
// asked, so the loop terminates regardless of answer quality. Calls in
// any other state return the conversation unchanged.
func (ctl *Controller) Next(ctx context.Context, conv Conversation, p profile.Profile) (Conversation, *Question) {
	if conv.State != StateNeedsInfo {
		return conv, nil
	}
	log := logging.FromContext(ctx, ctl.log)

	unresolved := p.UnresolvedInformative()
	if len(unresolved) == 0 {
		return ctl.finish(ctx, conv, StateSatisfied, log), nil
	}
	if conv.Round >= ctl.maxRounds {
		return ctl.finish(ctx, conv, StateExhausted, log), nil
	}

	field := nextField(conv, unresolved)
	if field == "" {
		// Every open field was already asked about; asking twice is
		// never allowed.
		return ctl.finish(ctx, conv, StateExhausted, log), nil
	}

	text := ctl.question(ctx, field, p)
	conv.Round++
	conv.Asked = append(conv.Asked, field)
	conv.PendingField = field
	conv.PendingQuestion = text
	conv.State = StateAwaitingAnswer

	log.Debug("dialogue round %d asks about %s", conv.Round, field)
	return conv, &Question{Field: field, Text: text, Round: conv.Round}
}

// Integrate folds the visitor's answer into an AWAITING_ANSWER
// conversation and hands control back to NEEDS_INFO. The caller then
// re-extracts over CombinedText with the session profile as prior and
// calls Next again.
func (ctl *Controller) Integrate(conv Conversation, answer string) Conversation {
	if conv.State != StateAwaitingAnswer {
		return conv
	}
	conv.Exchanges = append(conv.Exchanges, Exchange{
		Field:    conv.PendingField,
		Question: conv.PendingQuestion,
		Answer:   strings.TrimSpace(answer),
	})
	conv.PendingField = ""
	conv.PendingQuestion = ""
	conv.State = StateNeedsInfo
	return conv
}

// nextField picks the highest-priority unresolved field not yet asked
// about. The priority order is static; answers never reshuffle it.
func nextField(conv Conversation, unresolved []profile.Field) profile.Field {
	for _, f := range unresolved {
		if !conv.askedAbout(f) {
			return f
		}
	}
	return ""
}

func (ctl *Controller) finish(ctx context.Context, conv Conversation, s State, log logging.Logger) Conversation {
	conv.State = s
	conv.PendingField = ""
	conv.PendingQuestion = ""

	outcome := "satisfied"
	if s == StateExhausted {
		outcome = "exhausted"
	}
	if ctl.metrics != nil {
		ctl.metrics.RecordDialogue(ctx, conv.Round, outcome)
	}
	log.Debug("dialogue terminal %s after %d round(s)", s, conv.Round)
	return conv
}
