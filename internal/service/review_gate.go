package service

import (
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// DefaultReviewWindow is how long per-question detail stays visible after
// a session is finalized.
const DefaultReviewWindow = 24 * time.Hour

// ReviewGate decides whether a finished session may still show its
// per-question detail. Nothing is stored; the answer is derived from
// submitted_at on every read.
type ReviewGate struct {
	Window time.Duration
}

// NewReviewGate returns a gate with the given window, or the default when
// window is not positive.
func NewReviewGate(window time.Duration) ReviewGate {
	if window <= 0 {
		window = DefaultReviewWindow
	}
	return ReviewGate{Window: window}
}

// CanViewDetail reports whether now - submitted_at < window.
// Sessions that are not terminal never expose detail.
func (g ReviewGate) CanViewDetail(s *model.ExamSession, now time.Time) bool {
	if s == nil || !s.Status.IsTerminal() || s.SubmittedAt == nil {
		return false
	}
	return now.Sub(*s.SubmittedAt) < g.Window
}

// ClosesAt returns the instant the detail view stops being available.
func (g ReviewGate) ClosesAt(s *model.ExamSession) *time.Time {
	if s == nil || s.SubmittedAt == nil {
		return nil
	}
	t := s.SubmittedAt.Add(g.Window)
	return &t
}
