package model

import (
	"testing"
	"time"
)

func TestExamSessionClock(t *testing.T) {
	start := time.Date(2026, 1, 10, 7, 30, 0, 0, time.UTC)
	s := &ExamSession{StartedAt: start, DurationMinutes: 90}

	if want := start.Add(90 * time.Minute); !s.Deadline().Equal(want) {
		t.Fatalf("Deadline() = %v, want %v", s.Deadline(), want)
	}

	tests := []struct {
		elapsed       time.Duration
		wantRemaining int
		wantOverdue   bool
	}{
		{0, 5400, false},
		{time.Minute + 500*time.Millisecond, 5339, false},
		{90*time.Minute - time.Second, 1, false},
		{90 * time.Minute, 0, true},
		{2 * time.Hour, 0, true},
	}
	for _, tt := range tests {
		now := start.Add(tt.elapsed)
		if got := s.ServerRemaining(now); got != tt.wantRemaining {
			t.Errorf("ServerRemaining(+%s) = %d, want %d", tt.elapsed, got, tt.wantRemaining)
		}
		if got := s.IsOverdue(now); got != tt.wantOverdue {
			t.Errorf("IsOverdue(+%s) = %v, want %v", tt.elapsed, got, tt.wantOverdue)
		}
	}
}

func TestSessionStatusIsTerminal(t *testing.T) {
	for status, want := range map[SessionStatus]bool{
		SessionStatusInProgress: false,
		SessionStatusSubmitted:  true,
		SessionStatusExpired:    true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
