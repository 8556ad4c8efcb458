package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// NameResolver looks up display names for a batch of students.
type NameResolver interface {
	NamesByIDs(ctx context.Context, ids []int) (map[int]string, error)
}

// ScoreSink stores best scores.
type ScoreSink interface {
	RecordBest(ctx context.Context, records []repository.ScoreRecord) error
}

// LeaderboardWorker drains the result queue into the subject leaderboards.
type LeaderboardWorker struct {
	rdb   *redis.Client
	names NameResolver
	sink  ScoreSink
	log   zerolog.Logger
}

func NewLeaderboardWorker(rdb *redis.Client, names NameResolver, sink ScoreSink, log zerolog.Logger) *LeaderboardWorker {
	return &LeaderboardWorker{
		rdb:   rdb,
		names: names,
		sink:  sink,
		log:   log.With().Str("component", "leaderboard_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *LeaderboardWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LeaderboardWorker started")

	batch := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PublishResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p resultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch flush with requeue on failure
// ----------------------------------------------------------------

func (w *LeaderboardWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.flush(ctx, batch); err != nil {
		w.log.Error().Err(err).Int("size", len(batch)).Msg("Leaderboard flush failed, requeueing")
		pipe := w.rdb.Pipeline()
		for _, p := range batch {
			raw, _ := json.Marshal(p)
			pipe.RPush(ctx, config.WorkerKey.PublishResultsQueue, raw)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			w.log.Error().Err(err).Msg("Requeue failed, results dropped from leaderboard")
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("Leaderboard batch flushed")
}

func (w *LeaderboardWorker) flush(ctx context.Context, batch []*resultPayload) error {
	ids := make([]int, 0, len(batch))
	seen := make(map[int]struct{}, len(batch))
	for _, p := range batch {
		if _, ok := seen[p.StudentID]; !ok {
			seen[p.StudentID] = struct{}{}
			ids = append(ids, p.StudentID)
		}
	}

	names, err := w.names.NamesByIDs(ctx, ids)
	if err != nil {
		return err
	}

	records := make([]repository.ScoreRecord, 0, len(batch))
	for _, p := range batch {
		records = append(records, repository.ScoreRecord{
			SubjectID: p.SubjectID,
			StudentID: p.StudentID,
			Name:      names[p.StudentID],
			Score:     p.Score,
		})
	}
	return w.sink.RecordBest(ctx, records)
}
