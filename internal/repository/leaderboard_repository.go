package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
)

// LeaderboardEntry is one ranked row of a subject leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	StudentID int    `json:"student_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
}

// ScoreRecord is a graded attempt to be folded into a leaderboard.
type ScoreRecord struct {
	SubjectID int
	StudentID int
	Name      string
	Score     int
}

// LeaderboardRepository keeps each student's best score per subject in a
// Redis sorted set. It is derived data; sessions in PostgreSQL stay the
// source of truth.
type LeaderboardRepository struct {
	rdb *redis.Client
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(rdb *redis.Client) *LeaderboardRepository {
	return &LeaderboardRepository{rdb: rdb}
}

// RecordBest folds a batch of scores in one pipeline. ZADD GT keeps the
// higher of the stored and the new score.
func (r *LeaderboardRepository) RecordBest(ctx context.Context, records []ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for _, rec := range records {
		member := strconv.Itoa(rec.StudentID)
		pipe.ZAddArgs(ctx, config.CacheKey.SubjectLeaderboardKey(rec.SubjectID), redis.ZAddArgs{
			GT:      true,
			Members: []redis.Z{{Score: float64(rec.Score), Member: member}},
		})
		if rec.Name != "" {
			pipe.HSet(ctx, config.CacheKey.SubjectLeaderboardNamesKey(rec.SubjectID), member, rec.Name)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the n best entries of a subject, highest first.
func (r *LeaderboardRepository) Top(ctx context.Context, subjectID, n int) ([]LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := r.rdb.ZRevRangeWithScores(ctx, config.CacheKey.SubjectLeaderboardKey(subjectID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(zs) == 0 {
		return []LeaderboardEntry{}, nil
	}

	members := make([]string, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
	}
	names, err := r.rdb.HMGet(ctx, config.CacheKey.SubjectLeaderboardNamesKey(subjectID), members...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		id, err := strconv.Atoi(members[i])
		if err != nil {
			continue
		}
		name, _ := names[i].(string)
		entries = append(entries, LeaderboardEntry{
			Rank:      i + 1,
			StudentID: id,
			Name:      name,
			Score:     int(z.Score),
		})
	}
	return entries, nil
}

// RankOf returns a student's 1-based rank and best score, or ok=false when
// the student has no graded attempt on the board.
func (r *LeaderboardRepository) RankOf(ctx context.Context, subjectID, studentID int) (LeaderboardEntry, bool, error) {
	key := config.CacheKey.SubjectLeaderboardKey(subjectID)
	member := strconv.Itoa(studentID)

	rank, err := r.rdb.ZRevRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return LeaderboardEntry{}, false, err
	}
	score, err := r.rdb.ZScore(ctx, key, member).Result()
	if err != nil {
		return LeaderboardEntry{}, false, err
	}
	name, err := r.rdb.HGet(ctx, config.CacheKey.SubjectLeaderboardNamesKey(subjectID), member).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LeaderboardEntry{}, false, err
	}
	return LeaderboardEntry{
		Rank:      int(rank) + 1,
		StudentID: studentID,
		Name:      name,
		Score:     int(score),
	}, true, nil
}
