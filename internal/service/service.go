// Package service implements the game lifecycle, the rating update on
// completion and the leaderboard, on top of the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/rating"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/repository"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned when a request fails a business-level check
// that the HTTP layer does not perform.
var ErrInvalidRequest = errors.New("invalid request")

const (
	// ticketCutoff is the worst placement that still earns a ticket.
	ticketCutoff = 3
	// unrankedPlacement is assigned to participants missing from a
	// submitted ranking list, unless a real rank is even worse.
	unrankedPlacement = 999
	maxGameCapacity   = 10_000
)

// GameService owns the game state machine: admission while PLANNED, the
// PLANNED → PROGRESS start, and the PROGRESS → COMPLETED finish that applies
// rating changes and ticket rewards.
type GameService struct {
	store repository.Store
	calc  rating.Calculator
	log   *zap.Logger
}

// NewGameService constructs a GameService with its dependencies.
func NewGameService(store repository.Store, calc rating.Calculator, log *zap.Logger) *GameService {
	return &GameService{store: store, calc: calc, log: log.Named("games")}
}

// CreateGame validates the request and schedules a PLANNED game.
func (s *GameService) CreateGame(ctx context.Context, req model.CreateGameRequest) (*model.Game, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Place = strings.TrimSpace(req.Place)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduledAt is required", ErrInvalidRequest)
	}
	if req.MaxParticipant <= 0 || req.MaxParticipant > maxGameCapacity {
		return nil, fmt.Errorf("%w: maxParticipant must be between 1 and %d", ErrInvalidRequest, maxGameCapacity)
	}

	game, err := s.store.CreateGame(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	s.log.Info("game created", zap.String("game_id", game.ID), zap.Time("scheduled_at", game.ScheduledAt))
	return game, nil
}

// ListGames returns every game newest first.
func (s *GameService) ListGames(ctx context.Context) ([]model.GameSummary, error) {
	return s.store.ListGames(ctx)
}

// GetGame returns a game with its participants in standing order.
func (s *GameService) GetGame(ctx context.Context, id string) (*model.GameDetail, error) {
	game, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	if participants == nil {
		participants = []model.ParticipantView{}
	}
	return &model.GameDetail{Game: *game, Participants: participants}, nil
}

// Apply admits userID to a PLANNED game. Without a ticket the participant is
// queued as SUSPENDED; with one, a ticket is spent and the participant is
// CONFIRMED.
//
// Checks run in a fixed order and the first failure wins: the game exists,
// has room, is PLANNED, and the user has not applied yet. All of them, the
// ticket spend and the insert share one transaction that holds the game row,
// so two applications to the same game cannot both take the last slot and a
// ticket cannot be spent twice.
func (s *GameService) Apply(ctx context.Context, gameID, userID string, useTicket bool) (*model.Participant, error) {
	var created *model.Participant
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		game, err := tx.LockGame(ctx, gameID)
		if err != nil {
			return err
		}
		count, err := tx.CountParticipants(ctx, gameID)
		if err != nil {
			return err
		}
		if game.IsFull(count) {
			return repository.ErrGameFull
		}
		if game.Status != model.GameStatusPlanned {
			return fmt.Errorf("apply to %s game: %w", game.Status, repository.ErrInvalidState)
		}
		if _, err := tx.GetParticipant(ctx, gameID, userID); err == nil {
			return repository.ErrAlreadyApplied
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		p := &model.Participant{
			GameID: gameID,
			UserID: userID,
			Status: model.ParticipantSuspended,
		}
		if useTicket {
			if err := tx.SpendTicket(ctx, userID); err != nil {
				return err
			}
			p.Status = model.ParticipantConfirmed
			p.UsedTicket = true
		}
		if err := tx.CreateParticipant(ctx, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("applied to game",
		zap.String("game_id", gameID),
		zap.String("user_id", userID),
		zap.Bool("used_ticket", created.UsedTicket),
	)
	return created, nil
}

// StartGame moves a PLANNED game to PROGRESS.
func (s *GameService) StartGame(ctx context.Context, gameID string) (*model.Game, error) {
	var started *model.Game
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		game, err := tx.LockGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.Status != model.GameStatusPlanned {
			return fmt.Errorf("start %s game: %w", game.Status, repository.ErrInvalidState)
		}
		if err := tx.UpdateGameStatus(ctx, gameID, model.GameStatusProgress); err != nil {
			return err
		}
		game.Status = model.GameStatusProgress
		started = game
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game started", zap.String("game_id", gameID))
	return started, nil
}

// StartDueGames starts every PLANNED game whose scheduled time is at or before now.
func (s *GameService) StartDueGames(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.store.StartDueGames(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.log.Info("game started on schedule", zap.String("game_id", id))
	}
	return ids, nil
}

// FinishGame closes a PROGRESS game with the submitted final placements.
//
// Every registered participant gets a placement: its submitted rank, or a
// shared last place when the submission leaves it out. The rating calculator
// runs over that full set, and then, in one transaction, each participant's
// rank, PPI change and ticket reward are written, each user's PPI and ticket
// balance are incremented, and the game becomes COMPLETED. Either all of it
// is visible afterwards or none of it is.
func (s *GameService) FinishGame(ctx context.Context, gameID string, rankings []model.PlayerRank) (*model.FinishResult, error) {
	var results []placementResult
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		game, err := tx.LockGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.Status != model.GameStatusProgress {
			return fmt.Errorf("finish %s game: %w", game.Status, repository.ErrInvalidState)
		}
		participants, err := tx.ListParticipants(ctx, gameID)
		if err != nil {
			return err
		}

		outcomes, err := resolvePlacements(participants, rankings)
		if err != nil {
			return err
		}
		changes := s.calc.Compute(outcomes)

		results = make([]placementResult, len(outcomes))
		for i, o := range outcomes {
			r := placementResult{userID: o.UserID, rank: o.Placement, ppiChange: changes[i].Delta}
			if o.Placement <= ticketCutoff {
				r.ticketChange = 1
			}
			if err := tx.UpdateParticipantResult(ctx, gameID, r.userID, r.rank, r.ppiChange, r.ticketChange); err != nil {
				return err
			}
			if err := tx.AdjustUser(ctx, r.userID, r.ppiChange, r.ticketChange); err != nil {
				return err
			}
			results[i] = r
		}
		return tx.UpdateGameStatus(ctx, gameID, model.GameStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		s.log.Debug("rating applied",
			zap.String("game_id", gameID),
			zap.String("user_id", r.userID),
			zap.Int("rank", r.rank),
			zap.Int("ppi_change", r.ppiChange),
			zap.Int("ticket_change", r.ticketChange),
		)
	}
	s.log.Info("game finished", zap.String("game_id", gameID), zap.Int("participants", len(results)))
	return &model.FinishResult{Success: true, Message: "Game finished successfully"}, nil
}

type placementResult struct {
	userID       string
	rank         int
	ppiChange    int
	ticketChange int
}

// resolvePlacements matches submitted ranks to the registered participants.
// A submission must name each user at most once, only registered
// participants, and only ranks between 1 and the participant count.
// Participants it omits share a placement worse than any submitted rank.
// Outcomes are ordered by user ID.
func resolvePlacements(participants []model.ParticipantView, rankings []model.PlayerRank) ([]rating.Outcome, error) {
	registered := make(map[string]bool, len(participants))
	for _, p := range participants {
		registered[p.UserID] = true
	}

	submitted := make(map[string]int, len(rankings))
	worst := 0
	for _, r := range rankings {
		if r.Rank < 1 || r.Rank > len(participants) {
			return nil, fmt.Errorf("%w: rank %d for user %s is outside 1..%d", repository.ErrInvalidRankings, r.Rank, r.UserID, len(participants))
		}
		if _, dup := submitted[r.UserID]; dup {
			return nil, fmt.Errorf("%w: user %s ranked twice", repository.ErrInvalidRankings, r.UserID)
		}
		if !registered[r.UserID] {
			return nil, fmt.Errorf("%w: user %s is not a participant", repository.ErrInvalidRankings, r.UserID)
		}
		submitted[r.UserID] = r.Rank
		worst = max(worst, r.Rank)
	}
	unranked := max(unrankedPlacement, worst+1)

	outcomes := make([]rating.Outcome, len(participants))
	for i, p := range participants {
		placement, ok := submitted[p.UserID]
		if !ok {
			placement = unranked
		}
		outcomes[i] = rating.Outcome{UserID: p.UserID, Placement: placement, Rating: p.User.PPI}
	}
	// one lock order for every finish, so two finishes sharing users cannot deadlock
	slices.SortFunc(outcomes, func(a, b rating.Outcome) int { return strings.Compare(a.UserID, b.UserID) })
	return outcomes, nil
}
