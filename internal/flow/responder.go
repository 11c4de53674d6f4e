package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/openai/openai-go"

	"github.com/urman-dev/leadbot/internal/genai"
	"github.com/urman-dev/leadbot/internal/knowledge"
	"github.com/urman-dev/leadbot/internal/models"
)

// Apology is the canned reply sent when generation fails. The turn is not
// recorded and the dialog state stays untouched so the user can retry.
const Apology = "Извините, произошла ошибка при обработке вашего запроса. Попробуйте позже."

// retrievalTopK is how many knowledge snippets are injected per turn.
const retrievalTopK = 3

// DefaultGenerationWindow is how many recent turns are replayed to the model.
// Narrower than models.HistoryLimit: stored history also feeds the hand-off
// summary, which wants more context than the prompt does.
const DefaultGenerationWindow = 5

const systemPersona = "Вы — AI-ассистент компании URMAN. Компания помогает клиентам с освоением лесных участков: аренда, проектирование, лесоустройство. Ваша задача — отвечать на вопросы клиента, используя базу знаний компании, и постепенно собирать данные для заявки."

var systemRules = []string{
	"Задавайте только один вопрос за раз.",
	"Не спрашивайте повторно то, что уже известно.",
	"Отвечайте на основе предоставленных фрагментов базы знаний.",
	"Если информации недостаточно, честно скажите об этом. Не выдумывайте факты.",
	"Общайтесь вежливо и по делу, на русском языке.",
}

// ResponderOpts holds configuration for the responder.
type ResponderOpts struct {
	HistoryWindow int
}

// ResponderOption configures the responder.
type ResponderOption func(*ResponderOpts)

// WithHistoryWindow sets how many recent turns are included in the prompt.
func WithHistoryWindow(n int) ResponderOption {
	return func(o *ResponderOpts) { o.HistoryWindow = n }
}

// Responder produces the assistant reply for one turn: it retrieves relevant
// knowledge snippets, assembles the prompt from the dialog state, and calls
// the model.
type Responder struct {
	genAI         genai.ClientInterface
	retriever     knowledge.Retriever
	historyWindow int
}

// NewResponder creates a responder. The retriever may be nil, in which case
// replies are generated without knowledge context.
func NewResponder(genAI genai.ClientInterface, retriever knowledge.Retriever, opts ...ResponderOption) *Responder {
	cfg := ResponderOpts{HistoryWindow: DefaultGenerationWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultGenerationWindow
	}
	return &Responder{
		genAI:         genAI,
		retriever:     retriever,
		historyWindow: cfg.HistoryWindow,
	}
}

// Reply generates the assistant's answer for the utterance against the given
// state. The state is read, never written. On generation failure the apology
// text is returned alongside the error so the caller can send it without
// committing the turn.
func (r *Responder) Reply(ctx context.Context, state *models.ConversationState, utterance string) (string, error) {
	contextBlock := r.retrieveContext(ctx, utterance)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, r.historyWindow+2)
	messages = append(messages, openai.SystemMessage(buildSystemPrompt(state)))
	for _, turn := range state.RecentHistory(r.historyWindow) {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(buildUserPrompt(contextBlock, utterance)))

	text, err := r.genAI.GenerateWithMessages(ctx, messages)
	if err != nil {
		return Apology, fmt.Errorf("reply generation failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Apology, fmt.Errorf("reply generation returned empty text")
	}

	// The dialog must keep moving: when the model answered without asking
	// anything, append the canned question for the stage being entered.
	if state.Stage != models.StageCompleted && !strings.Contains(text, "?") {
		if question := FallbackQuestion(state.Stage); question != "" {
			text = text + "\n\n" + question
		}
	}
	return text, nil
}

// retrieveContext queries the knowledge index for the utterance. Retrieval
// failures degrade to an answer without context rather than failing the turn.
func (r *Responder) retrieveContext(ctx context.Context, utterance string) string {
	if r.retriever == nil {
		return ""
	}
	snippets, err := r.retriever.Query(ctx, utterance, retrievalTopK)
	if err != nil {
		slog.Warn("Responder retrieval failed, continuing without context", "error", err)
		return ""
	}
	if len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "Фрагмент %d:\n%s\n\n", i+1, snippet.Text)
	}
	return strings.TrimSpace(b.String())
}

func buildSystemPrompt(state *models.ConversationState) string {
	var b strings.Builder
	b.WriteString(systemPersona)
	b.WriteString("\n\nТекущее состояние диалога:\n")
	b.WriteString(summarizeState(state))
	b.WriteString("\nПравила:\n")
	for _, rule := range systemRules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	return b.String()
}

// summarizeState renders the stage and every collected field so the model
// never re-asks what is already known.
func summarizeState(state *models.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Этап: %s\n", state.Stage)
	writeField(&b, "Имя", state.Fields.Name)
	writeField(&b, "Площадь участка", state.Fields.Area)
	writeField(&b, "Регион", state.Fields.Region)
	writeField(&b, "Цель освоения", state.Fields.Purpose)
	writeField(&b, "Стадия проекта", state.Fields.Phase)
	writeField(&b, "Контакт", state.Fields.Contact)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = "не указано"
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func buildUserPrompt(contextBlock, utterance string) string {
	if contextBlock == "" {
		return utterance
	}
	return fmt.Sprintf("Контекст из базы знаний:\n%s\n\nСообщение клиента: %s", contextBlock, utterance)
}

var lastQuestionPattern = regexp.MustCompile(`[^.!?\n]*\?`)

// LastQuestion returns the final question sentence of a reply, or "" when the
// reply asks nothing.
func LastQuestion(reply string) string {
	matches := lastQuestionPattern.FindAllString(reply, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1])
}
