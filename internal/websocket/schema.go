package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AnswerRequest saves (part of) one answer. Omitted fields are unchanged;
// a null or empty selected_option clears the selection.
type AnswerRequest struct {
	QuestionID       string            `json:"question_id"`
	SelectedOption   model.OptionField `json:"selected_option"`
	Flagged          *bool             `json:"flagged"`
	RemainingSeconds *int              `json:"remaining_seconds"`
}

// SubmitRequest finishes the session.
type SubmitRequest struct {
	RemainingSeconds *int `json:"remaining_seconds"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

type SavedResponse struct {
	Event            Event  `json:"event"`
	QuestionID       string `json:"question_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type GradedResponse struct {
	Event           Event  `json:"event"`
	Status          string `json:"status"`
	Score           int    `json:"score"`
	Total           int    `json:"total"`
	CorrectCount    int    `json:"correct_count"`
	WrongCount      int    `json:"wrong_count"`
	UnansweredCount int    `json:"unanswered_count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
