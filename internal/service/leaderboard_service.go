package service

import (
	"context"

	"github.com/stemsi/exstem-cbt/internal/repository"
)

// LeaderboardReader is the read side of the subject leaderboard.
type LeaderboardReader interface {
	Top(ctx context.Context, subjectID, n int) ([]repository.LeaderboardEntry, error)
	RankOf(ctx context.Context, subjectID, studentID int) (repository.LeaderboardEntry, bool, error)
}

// Leaderboard is a subject ranking plus the caller's own position.
type Leaderboard struct {
	SubjectID int                           `json:"subject_id"`
	Entries   []repository.LeaderboardEntry `json:"entries"`
	Me        *repository.LeaderboardEntry  `json:"me,omitempty"`
}

// LeaderboardService serves best-score rankings. It never reads session rows.
type LeaderboardService struct {
	board LeaderboardReader
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(board LeaderboardReader) *LeaderboardService {
	return &LeaderboardService{board: board}
}

// Get returns the top n of a subject and, when ranked, the student's own entry.
func (s *LeaderboardService) Get(ctx context.Context, subjectID, studentID, n int) (*Leaderboard, error) {
	entries, err := s.board.Top(ctx, subjectID, n)
	if err != nil {
		return nil, err
	}
	lb := &Leaderboard{SubjectID: subjectID, Entries: entries}

	me, ok, err := s.board.RankOf(ctx, subjectID, studentID)
	if err != nil {
		return nil, err
	}
	if ok {
		lb.Me = &me
	}
	return lb, nil
}
