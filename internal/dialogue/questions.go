package dialogue

import (
	"context"
	"strings"
	"unicode"

	"muza/internal/llm"
	"muza/internal/logging"
	"muza/internal/profile"
)

// Canned clarifying questions per field. The optional phraser may re-word
// them; these exact texts are the fallback on any failure.
var questionTemplates = map[profile.Field]string{
	profile.FieldCompanionship: "С кем вы планируете посетить выставку? (девушка/парень, друзья, семья, бабушка/дедушка)",
	profile.FieldInterests:     "Какие темы вас особенно интересуют? (живопись, фотография, история, технологии и т.д.)",
	profile.FieldMood:          "Какое у вас настроение или повод для визита? (романтическое свидание, семейный выход, спокойный отдых)",
	profile.FieldAge:           "Сколько вам лет или какой возрастной категории вы принадлежите?",
}

// fieldTopics names the fields for the phrasing prompt.
var fieldTopics = map[profile.Field]string{
	profile.FieldCompanionship: "состав компании",
	profile.FieldInterests:     "интересы",
	profile.FieldMood:          "настроение",
	profile.FieldAge:           "возраст",
}

const (
	phraseTemperature = 0.4
	phraseMaxTokens   = 120
	maxQuestionRunes  = 200
)

// question returns the text to ask for field: the canned template, or the
// phraser's re-wording when a phraser is configured and its output
// survives sanitization.
func (ctl *Controller) question(ctx context.Context, field profile.Field, p profile.Profile) string {
	template := questionTemplates[field]
	if ctl.phraser == nil || ctl.prompts == nil {
		return template
	}

	summary := p.Summary()
	if summary == "" {
		summary = "пока ничего не известно"
	}
	prompt, err := ctl.prompts.ClarifyPrompt(summary, fieldTopics[field], template)
	if err != nil {
		return template
	}

	resp, err := ctl.phraser.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: phraseTemperature,
		MaxTokens:   phraseMaxTokens,
	})
	if err != nil {
		logging.FromContext(ctx, ctl.log).Debug("question phrasing for %s failed, keeping template: %v", field, err)
		return template
	}
	if phrased, ok := sanitizeQuestion(resp.Content); ok {
		return phrased
	}
	return template
}

// sanitizeQuestion validates a phrased question: one line of Russian text
// of sane length. A missing trailing question mark is appended; anything
// else unusable rejects the phrasing in favor of the template.
func sanitizeQuestion(raw string) (string, bool) {
	q := strings.TrimSpace(raw)
	q = strings.Trim(q, "\"«»")
	q = strings.TrimSpace(q)
	if q == "" || strings.ContainsRune(q, '\n') {
		return "", false
	}
	if len([]rune(q)) > maxQuestionRunes {
		return "", false
	}
	if !containsCyrillic(q) {
		return "", false
	}
	if !strings.HasSuffix(q, "?") {
		q += "?"
	}
	return q, true
}

func containsCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
