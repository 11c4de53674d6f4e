// Package models defines the core data types shared across leadbot components.
package models

import "time"

// Stage identifies one discrete phase of the lead-qualification conversation.
// Stages only ever advance; StageCompleted is absorbing.
type Stage string

const (
	StageGreeting          Stage = "GREETING"
	StageCollectingArea    Stage = "COLLECTING_AREA"
	StageCollectingRegion  Stage = "COLLECTING_REGION"
	StageCollectingPurpose Stage = "COLLECTING_PURPOSE"
	StageCollectingStage   Stage = "COLLECTING_STAGE"
	StageCollectingContact Stage = "COLLECTING_CONTACT"
	StageCompleted         Stage = "COMPLETED"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryLimit is the number of most recent turns retained per conversation.
const HistoryLimit = 10

// Turn is a single message exchanged by either side, stored in history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LeadFields holds the structured data collected over the conversation.
// A field, once set to a non-empty value, is never cleared. Contact is the
// one exception: while the user is still in the contact stage it holds a
// tentative value that may be overwritten by a later attempt.
type LeadFields struct {
	Name    string `json:"name,omitempty"`
	Area    string `json:"area,omitempty"`
	Region  string `json:"region,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// ConversationState is the per-user dialog state. One instance exists per
// user identifier for the lifetime of the process; all mutation goes through
// the store so that turns for the same user never interleave.
type ConversationState struct {
	UserID       string     `json:"user_id"`
	Stage        Stage      `json:"stage"`
	Fields       LeadFields `json:"fields"`
	History      []Turn     `json:"history"`
	HandOffFired bool       `json:"hand_off_fired"`
	LastQuestion string     `json:"last_question,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AppendTurn adds a turn to the history and drops the oldest entries beyond
// HistoryLimit. The window slides; relative order is preserved.
func (s *ConversationState) AppendTurn(role Role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content, Timestamp: time.Now()})
	if len(s.History) > HistoryLimit {
		s.History = s.History[len(s.History)-HistoryLimit:]
	}
}

// RecentHistory returns up to the last n turns, oldest first.
func (s *ConversationState) RecentHistory(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) > n {
		return s.History[len(s.History)-n:]
	}
	return s.History
}

// Clone returns a deep copy of the state. Used for snapshots handed outside
// the store's mutation lock.
func (s *ConversationState) Clone() ConversationState {
	out := *s
	out.History = make([]Turn, len(s.History))
	copy(out.History, s.History)
	return out
}

// Response represents an inbound message from the transport layer.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
