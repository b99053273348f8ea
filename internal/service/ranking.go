package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/repository"
)

// MaxRankingsLimit caps the page size of the leaderboard.
const MaxRankingsLimit = 100

// RankingService reads the PPI leaderboard.
type RankingService struct {
	store repository.Store
}

// NewRankingService constructs a RankingService.
func NewRankingService(store repository.Store) *RankingService {
	return &RankingService{store: store}
}

// Rankings returns one page of the leaderboard. Ranks follow standard
// competition ranking on PPI; within a page users are ordered by PPI
// descending, then user ID ascending. When requesterID is set and names a
// known user, that user's own entry is returned as MyRanking regardless of
// which page was asked for.
func (s *RankingService) Rankings(ctx context.Context, page, limit int, requesterID string) (*model.RankingsPage, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("%w: page and limit must be positive", ErrInvalidRequest)
	}
	if limit > MaxRankingsLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrInvalidRequest, MaxRankingsLimit)
	}
	if page-1 > math.MaxInt/limit {
		return nil, fmt.Errorf("%w: page %d is out of range", ErrInvalidRequest, page)
	}

	entries, err := s.store.RankedUsers(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("rankings: %w", err)
	}
	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankings: %w", err)
	}
	if entries == nil {
		entries = []model.RankingEntry{}
	}

	out := &model.RankingsPage{Rankings: entries, Total: total, Page: page, Limit: limit}
	if requesterID == "" {
		return out, nil
	}
	mine, err := s.store.UserRanking(ctx, requesterID)
	switch {
	case err == nil:
		out.MyRanking = mine
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("rankings: %w", err)
	}
	return out, nil
}
