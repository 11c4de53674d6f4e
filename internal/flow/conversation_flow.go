package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urman-dev/leadbot/internal/models"
	"github.com/urman-dev/leadbot/internal/store"
)

// ConversationFlow orchestrates one dialog turn: extraction, stage
// transition, reply generation, state commit, and hand-off. All of it runs
// under the store's per-user mutation lock so turns for the same user are
// strictly serialized.
type ConversationFlow struct {
	store     store.ConversationStore
	responder *Responder
	handOff   *HandOff
}

// NewConversationFlow wires the flow together. The hand-off may be nil when
// no tracker is configured.
func NewConversationFlow(conversations store.ConversationStore, responder *Responder, handOff *HandOff) *ConversationFlow {
	return &ConversationFlow{
		store:     conversations,
		responder: responder,
		handOff:   handOff,
	}
}

// ProcessMessage handles one inbound utterance and returns the reply to send.
// On generation failure the apology text is returned and the dialog state is
// left exactly as it was, so the user can repeat the message.
func (f *ConversationFlow) ProcessMessage(ctx context.Context, userID, utterance string) (string, error) {
	var reply string
	err := f.store.Mutate(ctx, userID, func(state *models.ConversationState) error {
		reply = f.processTurn(ctx, state, utterance)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("conversation mutation failed for %s: %w", userID, err)
	}
	return reply, nil
}

// processTurn computes the turn's effects against a scratch copy first and
// commits them only once a reply has been generated. Field updates, the stage
// transition, both history turns, and the hand-off all land atomically or not
// at all.
func (f *ConversationFlow) processTurn(ctx context.Context, state *models.ConversationState, utterance string) string {
	pending := state.Clone()
	if pending.Stage != models.StageCompleted {
		ExtractFields(pending.Stage, utterance, &pending.Fields)
		pending.Stage = NextStage(pending.Stage, utterance)
	}

	reply, err := f.responder.Reply(ctx, &pending, utterance)
	if err != nil {
		slog.Error("ConversationFlow generation failed, state unchanged", "error", err, "userID", state.UserID, "stage", state.Stage)
		return reply
	}

	state.Fields = pending.Fields
	state.Stage = pending.Stage
	state.AppendTurn(models.RoleUser, utterance)
	state.AppendTurn(models.RoleAssistant, reply)
	if question := LastQuestion(reply); question != "" {
		state.LastQuestion = question
	}

	if f.handOff != nil && f.handOff.MaybeFire(ctx, state) {
		if replaced, ok := ConfirmationOverride(reply, state.Fields.Contact); ok {
			reply = replaced
			state.History[len(state.History)-1].Content = reply
		}
	}

	slog.Debug("ConversationFlow turn processed", "userID", state.UserID, "stage", state.Stage, "historyLen", len(state.History))
	return reply
}
