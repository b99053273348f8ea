package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
)

func leaderboardStore(t *testing.T) *RankingService {
	t.Helper()
	store := newTestStore(t,
		player("e", 900, 0),
		player("c", 1100, 0),
		player("a", 1200, 0),
		player("d", 1000, 0),
		player("b", 1100, 0),
	)
	return NewRankingService(store)
}

func TestRankingsCompetitionRanks(t *testing.T) {
	svc := leaderboardStore(t)

	page, err := svc.Rankings(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	want := []struct {
		id   string
		rank int
	}{{"a", 1}, {"b", 2}, {"c", 2}, {"d", 4}, {"e", 5}}
	if len(page.Rankings) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(page.Rankings))
	}
	for i, w := range want {
		if got := page.Rankings[i]; got.UserID != w.id || got.Rank != w.rank {
			t.Fatalf("entry %d: expected %s#%d, got %s#%d", i, w.id, w.rank, got.UserID, got.Rank)
		}
	}
	if page.Total != 5 || page.Page != 1 || page.Limit != 10 {
		t.Fatalf("unexpected page metadata: %+v", page)
	}
	if page.MyRanking != nil {
		t.Fatalf("expected no myRanking for anonymous caller, got %+v", page.MyRanking)
	}
}

func TestRankingsPaginationKeepsGlobalRank(t *testing.T) {
	svc := leaderboardStore(t)

	page, err := svc.Rankings(context.Background(), 2, 2, "e")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if len(page.Rankings) != 2 || page.Rankings[0].UserID != "c" || page.Rankings[0].Rank != 2 ||
		page.Rankings[1].UserID != "d" || page.Rankings[1].Rank != 4 {
		t.Fatalf("unexpected second page: %+v", page.Rankings)
	}
	if page.MyRanking == nil || page.MyRanking.UserID != "e" || page.MyRanking.Rank != 5 {
		t.Fatalf("expected myRanking e#5, got %+v", page.MyRanking)
	}
}

func TestRankingsUnknownRequesterHasNoEntry(t *testing.T) {
	svc := leaderboardStore(t)

	page, err := svc.Rankings(context.Background(), 1, 3, "stranger")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if page.MyRanking != nil {
		t.Fatalf("expected nil myRanking, got %+v", page.MyRanking)
	}
}

func TestRankingsPastTheEnd(t *testing.T) {
	svc := leaderboardStore(t)

	page, err := svc.Rankings(context.Background(), 9, 10, "")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if page.Rankings == nil || len(page.Rankings) != 0 || page.Total != 5 {
		t.Fatalf("expected empty non-nil page with total 5, got %+v", page)
	}
}

func TestRankingsIdempotent(t *testing.T) {
	svc := leaderboardStore(t)
	ctx := context.Background()

	first, err := svc.Rankings(ctx, 1, 5, "b")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	second, err := svc.Rankings(ctx, 1, 5, "b")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	for i := range first.Rankings {
		if first.Rankings[i] != second.Rankings[i] {
			t.Fatalf("entry %d differs between reads", i)
		}
	}
	if *first.MyRanking != *second.MyRanking {
		t.Fatalf("myRanking differs between reads")
	}
}

func TestRankingsReflectFinishedGame(t *testing.T) {
	store := newTestStore(t, player("a", 1000, 0), player("b", 1000, 0))
	games := newTestGameService(t, store)
	g := runningGame(t, games, "a", "b")
	if _, err := games.FinishGame(context.Background(), g.ID, []model.PlayerRank{{UserID: "b", Rank: 1}, {UserID: "a", Rank: 2}}); err != nil {
		t.Fatalf("FinishGame: %v", err)
	}

	page, err := NewRankingService(store).Rankings(context.Background(), 1, 10, "a")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if page.Rankings[0].UserID != "b" || page.Rankings[0].PPI != 1012 || page.MyRanking.Rank != 2 {
		t.Fatalf("unexpected leaderboard after finish: %+v / %+v", page.Rankings, page.MyRanking)
	}
}

func TestRankingsRejectsBadPaging(t *testing.T) {
	svc := leaderboardStore(t)
	for _, tc := range []struct{ page, limit int }{
		{0, 10}, {1, 0}, {-1, 5},
		{1, MaxRankingsLimit + 1},
		{3, 1 << 62},
		{math.MaxInt, MaxRankingsLimit},
		{math.MaxInt/2 + 2, 2},
	} {
		if _, err := svc.Rankings(context.Background(), tc.page, tc.limit, ""); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("page=%d limit=%d: expected ErrInvalidRequest, got %v", tc.page, tc.limit, err)
		}
	}
}

func TestRankingsLastReachablePage(t *testing.T) {
	svc := leaderboardStore(t)
	page, err := svc.Rankings(context.Background(), math.MaxInt/MaxRankingsLimit, MaxRankingsLimit, "")
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if len(page.Rankings) != 0 || page.Total != 5 {
		t.Fatalf("expected empty far page, got %+v", page)
	}
}
