package dialogue

import (
	"context"
	"errors"
	"testing"

	"muza/internal/llm"
	"muza/internal/profile"
	"muza/internal/prompts"
)

func photographyProfile() profile.Profile {
	return profile.Profile{
		Age:       &profile.Entry{Value: "25", Confidence: 0.9, Strategy: "rules"},
		Interests: []profile.Entry{{Value: "фотография", Confidence: 0.75, Strategy: "lexical"}},
	}
}

func fullProfile() profile.Profile {
	p := photographyProfile()
	p.Companionship = &profile.Entry{Value: profile.CompanionPartner, Confidence: 0.85, Strategy: "rules"}
	p.Mood = &profile.Entry{Value: profile.MoodRomantic, Confidence: 0.8, Strategy: "rules"}
	return p
}

func TestNextAsksHighestPriorityGap(t *testing.T) {
	ctl := NewController(Config{})
	conv := NewConversation("Мне 25, люблю фотографию")

	conv, q := ctl.Next(context.Background(), conv, photographyProfile())

	if q == nil {
		t.Fatal("want a question")
	}
	if q.Field != profile.FieldCompanionship {
		t.Fatalf("asked about %s, want companionship first", q.Field)
	}
	if q.Text != questionTemplates[profile.FieldCompanionship] {
		t.Fatalf("question = %q, want canned template", q.Text)
	}
	if conv.State != StateAwaitingAnswer || conv.Round != 1 {
		t.Fatalf("state = %s round = %d, want AWAITING_ANSWER round 1", conv.State, conv.Round)
	}
}

func TestNextSatisfiedWithoutQuestions(t *testing.T) {
	ctl := NewController(Config{})
	conv := NewConversation("хочу на выставку")

	conv, q := ctl.Next(context.Background(), conv, fullProfile())

	if q != nil {
		t.Fatalf("question = %v, want none", q)
	}
	if conv.State != StateSatisfied {
		t.Fatalf("state = %s, want SATISFIED", conv.State)
	}
	if !conv.State.Terminal() {
		t.Fatal("SATISFIED must be terminal")
	}
}

func TestDialogueExhaustsWithinBudget(t *testing.T) {
	ctl := NewController(Config{})
	conv := NewConversation("что-нибудь посмотреть")
	empty := profile.Profile{}

	questions := 0
	for !conv.State.Terminal() {
		var q *Question
		conv, q = ctl.Next(context.Background(), conv, empty)
		if q == nil {
			break
		}
		questions++
		if questions > DefaultMaxRounds {
			t.Fatalf("asked %d questions, budget is %d", questions, DefaultMaxRounds)
		}
		conv = ctl.Integrate(conv, "не знаю")
	}

	if questions != DefaultMaxRounds {
		t.Fatalf("asked %d questions, want %d", questions, DefaultMaxRounds)
	}
	if conv.State != StateExhausted {
		t.Fatalf("state = %s, want EXHAUSTED", conv.State)
	}
}

func TestFieldNeverAskedTwice(t *testing.T) {
	ctl := NewController(Config{MaxRounds: 4})
	conv := NewConversation("выставка")
	empty := profile.Profile{}

	var asked []profile.Field
	for !conv.State.Terminal() {
		var q *Question
		conv, q = ctl.Next(context.Background(), conv, empty)
		if q == nil {
			break
		}
		asked = append(asked, q.Field)
		conv = ctl.Integrate(conv, "затрудняюсь ответить")
	}

	seen := map[profile.Field]bool{}
	for _, f := range asked {
		if seen[f] {
			t.Fatalf("field %s asked twice: %v", f, asked)
		}
		seen[f] = true
	}
	// All four informative fields fit in the raised budget, then the
	// controller stops even though nothing resolved.
	if len(asked) != len(profile.InformativeFields) {
		t.Fatalf("asked = %v, want all informative fields once", asked)
	}
	if conv.State != StateExhausted {
		t.Fatalf("state = %s, want EXHAUSTED", conv.State)
	}
}

func TestIntegrateBuildsCombinedText(t *testing.T) {
	ctl := NewController(Config{})
	conv := NewConversation("Мне 25, люблю фотографию")

	conv, q := ctl.Next(context.Background(), conv, photographyProfile())
	if q == nil {
		t.Fatal("want a question")
	}
	conv = ctl.Integrate(conv, "пойду с девушкой")

	if conv.State != StateNeedsInfo {
		t.Fatalf("state = %s, want NEEDS_INFO after answer", conv.State)
	}
	want := "Мне 25, люблю фотографию. пойду с девушкой"
	if got := conv.CombinedText(); got != want {
		t.Fatalf("combined = %q, want %q", got, want)
	}
	if len(conv.Exchanges) != 1 || conv.Exchanges[0].Field != profile.FieldCompanionship {
		t.Fatalf("exchanges = %+v", conv.Exchanges)
	}
}

func TestNextIgnoresWrongState(t *testing.T) {
	ctl := NewController(Config{})
	conv := NewConversation("выставка")
	conv.State = StateSatisfied

	got, q := ctl.Next(context.Background(), conv, profile.Profile{})
	if q != nil || got.State != StateSatisfied || got.Round != 0 {
		t.Fatalf("terminal conversation changed: %+v %v", got, q)
	}
}

func newLoader(t *testing.T) *prompts.PromptLoader {
	t.Helper()
	loader, err := prompts.NewPromptLoader()
	if err != nil {
		t.Fatalf("prompt loader: %v", err)
	}
	return loader
}

func TestPhraserRewordsQuestion(t *testing.T) {
	phrased := "Подскажите, с кем вы собираетесь в музей?"
	ctl := NewController(Config{
		Phraser: llm.NewMockClient(phrased),
		Prompts: newLoader(t),
	})
	conv := NewConversation("хочу на выставку")

	_, q := ctl.Next(context.Background(), conv, profile.Profile{})
	if q == nil || q.Text != phrased {
		t.Fatalf("question = %v, want phrased text", q)
	}
}

func TestPhraserGarbageFallsBackToTemplate(t *testing.T) {
	ctl := NewController(Config{
		Phraser: llm.NewMockClient("{}"),
		Prompts: newLoader(t),
	})
	conv := NewConversation("хочу на выставку")

	_, q := ctl.Next(context.Background(), conv, profile.Profile{})
	if q == nil || q.Text != questionTemplates[profile.FieldCompanionship] {
		t.Fatalf("question = %v, want canned template", q)
	}
}

func TestPhraserFailureFallsBackToTemplate(t *testing.T) {
	ctl := NewController(Config{
		Phraser: llm.NewFailingMockClient(errors.New("service down")),
		Prompts: newLoader(t),
	})
	conv := NewConversation("хочу на выставку")

	_, q := ctl.Next(context.Background(), conv, profile.Profile{})
	if q == nil || q.Text != questionTemplates[profile.FieldCompanionship] {
		t.Fatalf("question = %v, want canned template", q)
	}
}

func TestSanitizeQuestion(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"valid", "С кем вы идете?", "С кем вы идете?", true},
		{"appends question mark", "Расскажите о ваших интересах", "Расскажите о ваших интересах?", true},
		{"strips quotes", "«Какое у вас настроение?»", "Какое у вас настроение?", true},
		{"empty", "   ", "", false},
		{"no cyrillic", "{\"question\": 1}", "", false},
		{"multiline", "Вопрос?\nЕще вопрос?", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := sanitizeQuestion(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("sanitizeQuestion(%q) = %q %v, want %q %v", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}
