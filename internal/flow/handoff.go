package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/urman-dev/leadbot/internal/messaging"
	"github.com/urman-dev/leadbot/internal/models"
	"github.com/urman-dev/leadbot/internal/tracker"
)

// contactAskMarkers detect a generated reply that still asks for contact
// details after the hand-off has already fired.
var contactAskMarkers = []string{"телефон", "номер", "контакт", "связ", "звон"}

// confirmationTemplate replaces such a reply with an acknowledgement.
const confirmationTemplate = "Спасибо! Мы записали ваш номер %s. Наш специалист свяжется с вами в ближайшее время. Если вам удобнее другой способ связи, напишите об этом здесь."

// HandOff performs the one-time lead hand-off: a task in the external tracker
// and, optionally, an alert to a manager. The fired flag on the conversation
// state guarantees at-most-once semantics; delivery failures are logged and
// never retried.
type HandOff struct {
	tracker  tracker.Client
	notifier messaging.LeadNotifier
}

// NewHandOff creates a hand-off without a manager alert.
func NewHandOff(trackerClient tracker.Client) *HandOff {
	return &HandOff{tracker: trackerClient}
}

// NewHandOffWithNotifier creates a hand-off that also alerts a manager.
func NewHandOffWithNotifier(trackerClient tracker.Client, notifier messaging.LeadNotifier) *HandOff {
	return &HandOff{tracker: trackerClient, notifier: notifier}
}

// MaybeFire fires the hand-off if the conversation just completed with a
// contact on record and no hand-off has fired before. The fired flag is set
// before any delivery attempt: a failed delivery is lost, not duplicated.
// Returns whether the hand-off fired on this call.
func (h *HandOff) MaybeFire(ctx context.Context, state *models.ConversationState) bool {
	if state.Stage != models.StageCompleted || state.Fields.Contact == "" || state.HandOffFired {
		return false
	}
	state.HandOffFired = true

	task := buildTask(state)
	if h.tracker == nil {
		slog.Warn("HandOff fired without tracker configured, lead not delivered", "userID", state.UserID, "title", task.Title)
	} else if err := h.tracker.CreateTask(ctx, task); err != nil {
		slog.Error("HandOff task creation failed, lead lost", "error", err, "userID", state.UserID, "title", task.Title)
	} else {
		slog.Info("HandOff task created", "userID", state.UserID, "title", task.Title)
	}

	if h.notifier != nil {
		summary := fmt.Sprintf("Новая заявка: %s, тел. %s", displayName(state.Fields.Name), state.Fields.Contact)
		if err := h.notifier.NotifyLead(ctx, summary); err != nil {
			slog.Warn("HandOff manager alert failed", "error", err, "userID", state.UserID)
		}
	}
	return true
}

func displayName(name string) string {
	if name == "" {
		return "клиент"
	}
	return name
}

// buildTask assembles the tracker payload: every collected field plus the
// retained dialog history rendered as "speaker: text" lines.
func buildTask(state *models.ConversationState) tracker.Task {
	region := state.Fields.Region
	if region == "" {
		region = "регион не указан"
	}

	var b strings.Builder
	writeField(&b, "Имя", state.Fields.Name)
	writeField(&b, "Площадь участка", state.Fields.Area)
	writeField(&b, "Регион", state.Fields.Region)
	writeField(&b, "Цель освоения", state.Fields.Purpose)
	writeField(&b, "Стадия проекта", state.Fields.Phase)
	writeField(&b, "Контакт", state.Fields.Contact)
	b.WriteString("\nИстория диалога:\n")
	for _, turn := range state.History {
		speaker := "Клиент"
		if turn.Role == models.RoleAssistant {
			speaker = "Ассистент"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Content)
	}

	return tracker.Task{
		ID:    uuid.NewString(),
		Title: fmt.Sprintf("Новая заявка: %s (%s)", displayName(state.Fields.Name), region),
		Body:  b.String(),
		Contact: tracker.Contact{
			Name:  state.Fields.Name,
			Phone: state.Fields.Contact,
			Notes: "Заявка из Telegram-бота",
		},
	}
}

// ConfirmationOverride replaces a reply that still asks for contact details
// after the hand-off fired. Returns the (possibly replaced) reply and whether
// a replacement happened.
func ConfirmationOverride(reply, phone string) (string, bool) {
	lower := strings.ToLower(reply)
	for _, marker := range contactAskMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf(confirmationTemplate, phone), true
		}
	}
	return reply, false
}
