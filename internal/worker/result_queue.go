package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// resultPayload is the queue message for one finalized session.
type resultPayload struct {
	SessionID string              `json:"session_id"`
	StudentID int                 `json:"student_id"`
	SubjectID int                 `json:"subject_id"`
	Status    model.SessionStatus `json:"status"`
	Score     int                 `json:"score"`
	Total     int                 `json:"total"`
}

// ResultQueue hands finalized sessions to the leaderboard worker through a
// Redis list.
type ResultQueue struct {
	rdb *redis.Client
}

// NewResultQueue creates a new ResultQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb}
}

// Publish enqueues a terminal session. Sessions without a total are skipped.
func (q *ResultQueue) Publish(ctx context.Context, s *model.ExamSession) error {
	if s == nil || s.Score == nil || s.Total == nil {
		return nil
	}
	raw, err := json.Marshal(resultPayload{
		SessionID: s.ID.String(),
		StudentID: s.StudentID,
		SubjectID: s.SubjectID,
		Status:    s.Status,
		Score:     *s.Score,
		Total:     *s.Total,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PublishResultsQueue, raw).Err()
}
