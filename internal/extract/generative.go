package extract

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	muzaerrors "muza/internal/errors"
	"muza/internal/llm"
	"muza/internal/logging"
	"muza/internal/profile"
	"muza/internal/prompts"
)

// confGenerative sits below both rule and strong lexical hits: the model
// paraphrases, the deterministic strategies quote.
const confGenerative = 0.6

type generativeStrategy struct {
	client llm.CompletionClient
	loader *prompts.PromptLoader
	vocab  *profile.Vocabulary
	log    logging.Logger
}

// NewGenerativeStrategy builds the completion-backed strategy. The client
// must be non-nil; callers that run without a completion client simply do
// not register this strategy.
func NewGenerativeStrategy(client llm.CompletionClient, loader *prompts.PromptLoader, vocab *profile.Vocabulary, log logging.Logger) Strategy {
	return &generativeStrategy{
		client: client,
		loader: loader,
		vocab:  vocab,
		log:    logging.OrNop(log),
	}
}

func (s *generativeStrategy) Name() string { return StrategyGenerative }

// generativePayload is the JSON shape the extraction prompt demands.
type generativePayload struct {
	Age           *int     `json:"age"`
	Companionship *string  `json:"companionship"`
	Mood          *string  `json:"mood"`
	Interests     []string `json:"interests"`
	Accessibility []string `json:"accessibility"`
}

func (s *generativeStrategy) Extract(ctx context.Context, utterance string) ([]profile.Evidence, error) {
	prompt, err := s.loader.ExtractionPrompt(utterance)
	if err != nil {
		return nil, muzaerrors.NewExtractionDegraded(StrategyGenerative, err)
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, muzaerrors.NewExtractionDegraded(StrategyGenerative, err)
	}

	payload, err := parseGenerativePayload(resp.Content)
	if err != nil {
		s.log.Debug("generative payload unparseable: %v", err)
		return nil, muzaerrors.NewExtractionDegraded(StrategyGenerative, err)
	}

	return s.payloadEvidence(payload), nil
}

// parseGenerativePayload decodes the model output, repairing common JSON
// damage (markdown fences, trailing commas, single quotes) on a second
// attempt.
func parseGenerativePayload(content string) (generativePayload, error) {
	var payload generativePayload
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payload, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (s *generativeStrategy) payloadEvidence(payload generativePayload) []profile.Evidence {
	var out []profile.Evidence

	if payload.Age != nil {
		years := *payload.Age
		if years >= minPlausibleAge && years <= maxPlausibleAge {
			out = append(out, profile.Evidence{
				Field:      profile.FieldAge,
				Value:      strconv.Itoa(years),
				Confidence: confGenerative,
				Strategy:   StrategyGenerative,
			})
		}
	}

	if payload.Companionship != nil {
		if value, ok := s.vocab.CanonicalCompanionship(profile.NormalizeToken(*payload.Companionship)); ok {
			out = append(out, profile.Evidence{
				Field:      profile.FieldCompanionship,
				Value:      value,
				Confidence: confGenerative,
				Strategy:   StrategyGenerative,
			})
		}
	}

	if payload.Mood != nil {
		if value, ok := s.vocab.CanonicalMood(profile.NormalizeToken(*payload.Mood)); ok {
			out = append(out, profile.Evidence{
				Field:      profile.FieldMood,
				Value:      value,
				Confidence: confGenerative,
				Strategy:   StrategyGenerative,
			})
		}
	}

	seen := map[string]bool{}
	for _, interest := range payload.Interests {
		token := profile.NormalizeToken(interest)
		if token == "" {
			continue
		}
		tag, kind := s.vocab.CanonicalInterest(token)
		evidence := profile.Evidence{
			Field:      profile.FieldInterests,
			Value:      tag,
			Confidence: confGenerative,
			Strategy:   StrategyGenerative,
			Span:       interest,
		}
		if kind == profile.MatchNone {
			// Model surfaced a theme outside the closed vocabulary.
			// Keep it verbatim: it broadens search without resolving
			// the field.
			evidence.Value = token
			evidence.Confidence = profile.VerbatimConfidence
			evidence.Verbatim = true
		}
		key := strings.ToLower(evidence.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, evidence)
	}

	for _, access := range payload.Accessibility {
		if value, ok := s.vocab.CanonicalAccessibility(profile.NormalizeToken(access)); ok {
			out = append(out, profile.Evidence{
				Field:      profile.FieldAccessibility,
				Value:      value,
				Confidence: confGenerative,
				Strategy:   StrategyGenerative,
			})
		}
	}

	return out
}
