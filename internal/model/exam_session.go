package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusSubmitted  SessionStatus = "submitted"
	SessionStatusExpired    SessionStatus = "expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusExpired
}

// ExamSession is one student's timed attempt at one subject.
// Score, Total and the counts are populated once the session is terminal.
type ExamSession struct {
	ID               uuid.UUID     `json:"id"`
	StudentID        int           `json:"student_id"`
	SubjectID        int           `json:"subject_id"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	DurationMinutes  int           `json:"duration_minutes"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Score            *int          `json:"score,omitempty"`
	Total            *int          `json:"total,omitempty"`
	CorrectCount     int           `json:"correct_count"`
	WrongCount       int           `json:"wrong_count"`
	UnansweredCount  int           `json:"unanswered_count"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Deadline is the server-side instant after which the session may no longer
// accept answers.
func (s *ExamSession) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// ServerRemaining returns whole seconds left on the server clock, never negative.
func (s *ExamSession) ServerRemaining(now time.Time) int {
	left := s.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// IsOverdue reports whether the server deadline has passed at now.
func (s *ExamSession) IsOverdue(now time.Time) bool {
	return !now.Before(s.Deadline())
}

// SessionScore is the graded outcome written by a terminal transition.
type SessionScore struct {
	Score           int
	Total           int
	CorrectCount    int
	WrongCount      int
	UnansweredCount int
}

// Finalization describes a requested terminal transition.
type Finalization struct {
	SessionID   uuid.UUID
	Status      SessionStatus
	SubmittedAt time.Time
	// RemainingSeconds is the last client-reported value, already clamped.
	// Nil keeps the stored value.
	RemainingSeconds *int
}

// ─── Requests ───────────────────────────────────────────────────────

// RecordAnswerRequest is the partial-update payload for one answer.
// A missing field leaves the stored value untouched; "selected_option" set
// to null or "" clears the selection.
type RecordAnswerRequest struct {
	SelectedOption   OptionField `json:"selected_option" binding:"omitempty,answer_option"`
	Flagged          *bool       `json:"flagged"`
	RemainingSeconds *int        `json:"remaining_seconds" binding:"omitempty,min=0"`
}

// SubmitSessionRequest carries the client's last clock reading on submit.
type SubmitSessionRequest struct {
	RemainingSeconds *int `json:"remaining_seconds" binding:"omitempty,min=0"`
}
