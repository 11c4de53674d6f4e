package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/urman-dev/leadbot/internal/knowledge"
	"github.com/urman-dev/leadbot/internal/models"
)

// stubGenAI scripts the model: it records the prompt and returns a fixed
// reply or error.
type stubGenAI struct {
	reply       string
	err         error
	gotMessages []openai.ChatCompletionMessageParamUnion
	calls       int
}

func (s *stubGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	s.calls++
	s.gotMessages = messages
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubGenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

// stubRetriever records the query and returns scripted snippets.
type stubRetriever struct {
	snippets []knowledge.Snippet
	err      error
	gotQuery string
	gotTopK  int
}

func (s *stubRetriever) Query(ctx context.Context, text string, topK int) ([]knowledge.Snippet, error) {
	s.gotQuery = text
	s.gotTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.snippets, nil
}

func TestReplyQueriesRetrieverWithUtterance(t *testing.T) {
	genAI := &stubGenAI{reply: "Конечно, поможем. Какая площадь вас интересует?"}
	retriever := &stubRetriever{snippets: []knowledge.Snippet{{Text: "URMAN работает с 2010 года."}}}
	responder := NewResponder(genAI, retriever)

	state := &models.ConversationState{Stage: models.StageCollectingArea}
	if _, err := responder.Reply(context.Background(), state, "расскажите о компании"); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	if retriever.gotQuery != "расскажите о компании" {
		t.Errorf("retriever queried with %q, want the raw utterance", retriever.gotQuery)
	}
	if retriever.gotTopK != 3 {
		t.Errorf("retriever topK = %d, want 3", retriever.gotTopK)
	}
}

func TestReplyMessageLayout(t *testing.T) {
	genAI := &stubGenAI{reply: "Хорошо. В каком регионе участок?"}
	responder := NewResponder(genAI, nil, WithHistoryWindow(2))

	state := &models.ConversationState{Stage: models.StageCollectingRegion}
	for i := 0; i < 4; i++ {
		state.AppendTurn(models.RoleUser, "сообщение")
		state.AppendTurn(models.RoleAssistant, "ответ")
	}

	if _, err := responder.Reply(context.Background(), state, "Пермский край"); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	// System prompt + 2 windowed history turns + final user turn.
	if len(genAI.gotMessages) != 4 {
		t.Errorf("prompt has %d messages, want 4", len(genAI.gotMessages))
	}
}

func TestReplyAppendsFallbackWhenNoQuestion(t *testing.T) {
	genAI := &stubGenAI{reply: "Спасибо, записал."}
	responder := NewResponder(genAI, nil)

	state := &models.ConversationState{Stage: models.StageCollectingRegion}
	reply, err := responder.Reply(context.Background(), state, "50 га")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if !strings.HasSuffix(reply, FallbackQuestion(models.StageCollectingRegion)) {
		t.Errorf("expected fallback question appended, got %q", reply)
	}
}

func TestReplyKeepsGeneratedQuestion(t *testing.T) {
	genAI := &stubGenAI{reply: "Записал. В каком регионе находится участок?"}
	responder := NewResponder(genAI, nil)

	state := &models.ConversationState{Stage: models.StageCollectingRegion}
	reply, err := responder.Reply(context.Background(), state, "50 га")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != genAI.reply {
		t.Errorf("reply modified although it already asks a question: %q", reply)
	}
}

func TestReplyNoFallbackAfterCompletion(t *testing.T) {
	genAI := &stubGenAI{reply: "Мы работаем по всей России."}
	responder := NewResponder(genAI, nil)

	state := &models.ConversationState{Stage: models.StageCompleted}
	reply, err := responder.Reply(context.Background(), state, "где вы работаете?")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if strings.Contains(reply, "?") {
		t.Errorf("completed stage must not get a fallback question, got %q", reply)
	}
}

func TestReplyApologyOnGenerationFailure(t *testing.T) {
	genAI := &stubGenAI{err: errors.New("quota exceeded")}
	responder := NewResponder(genAI, nil)

	state := &models.ConversationState{Stage: models.StageCollectingArea}
	reply, err := responder.Reply(context.Background(), state, "50 га")
	if err == nil {
		t.Fatal("expected an error from failed generation")
	}
	if reply != Apology {
		t.Errorf("expected the apology text, got %q", reply)
	}
}

func TestReplySurvivesRetrievalFailure(t *testing.T) {
	genAI := &stubGenAI{reply: "Отвечаю без контекста. Какая площадь вас интересует?"}
	retriever := &stubRetriever{err: errors.New("index unavailable")}
	responder := NewResponder(genAI, retriever)

	state := &models.ConversationState{Stage: models.StageCollectingArea}
	reply, err := responder.Reply(context.Background(), state, "вопрос")
	if err != nil {
		t.Fatalf("retrieval failure must not fail the turn: %v", err)
	}
	if reply != genAI.reply {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	if got := buildUserPrompt("", "вопрос"); got != "вопрос" {
		t.Errorf("without context the prompt should be the raw utterance, got %q", got)
	}

	got := buildUserPrompt("Фрагмент 1:\nтекст", "вопрос")
	if !strings.Contains(got, "Фрагмент 1:") || !strings.Contains(got, "вопрос") {
		t.Errorf("prompt missing context or utterance: %q", got)
	}
}

func TestSummarizeStateListsEveryField(t *testing.T) {
	state := &models.ConversationState{
		Stage: models.StageCollectingContact,
		Fields: models.LeadFields{
			Name:   "Иван Петров",
			Area:   "50 га",
			Region: "Пермский край",
		},
	}
	summary := summarizeState(state)
	for _, want := range []string{"Иван Петров", "50 га", "Пермский край", "не указано"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestLastQuestion(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{"Спасибо. Какая площадь вас интересует?", "Какая площадь вас интересует?"},
		{"Первый вопрос? Нет. Второй вопрос?", "Второй вопрос?"},
		{"Ответ без вопроса.", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := LastQuestion(c.reply); got != c.want {
			t.Errorf("LastQuestion(%q) = %q, want %q", c.reply, got, c.want)
		}
	}
}
