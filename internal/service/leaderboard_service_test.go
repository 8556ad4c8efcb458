package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/exstem-cbt/internal/repository"
)

type stubBoard struct {
	top    []repository.LeaderboardEntry
	me     repository.LeaderboardEntry
	ranked bool
	err    error
}

func (b *stubBoard) Top(_ context.Context, _, n int) ([]repository.LeaderboardEntry, error) {
	if b.err != nil {
		return nil, b.err
	}
	if n < len(b.top) {
		return b.top[:n], nil
	}
	return b.top, nil
}

func (b *stubBoard) RankOf(_ context.Context, _, _ int) (repository.LeaderboardEntry, bool, error) {
	return b.me, b.ranked, nil
}

func TestLeaderboardServiceGet(t *testing.T) {
	top := []repository.LeaderboardEntry{
		{Rank: 1, StudentID: 7, Name: "Ani", Score: 95},
		{Rank: 2, StudentID: 3, Name: "Budi", Score: 80},
	}

	t.Run("ranked student", func(t *testing.T) {
		svc := NewLeaderboardService(&stubBoard{top: top, me: top[1], ranked: true})
		lb, err := svc.Get(context.Background(), 1, 3, 10)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if lb.SubjectID != 1 || len(lb.Entries) != 2 {
			t.Errorf("board = %+v", lb)
		}
		if lb.Me == nil || lb.Me.Rank != 2 {
			t.Errorf("me = %+v, want rank 2", lb.Me)
		}
	})

	t.Run("unranked student", func(t *testing.T) {
		svc := NewLeaderboardService(&stubBoard{top: top})
		lb, err := svc.Get(context.Background(), 1, 99, 1)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(lb.Entries) != 1 || lb.Me != nil {
			t.Errorf("board = %+v", lb)
		}
	})

	t.Run("store error", func(t *testing.T) {
		svc := NewLeaderboardService(&stubBoard{err: errors.New("redis down")})
		if _, err := svc.Get(context.Background(), 1, 3, 10); err == nil {
			t.Fatal("expected error")
		}
	})
}
