// Package repository implements persistence for the game ladder.
//
// Two Store implementations exist: PostgresStore, backed by pgx, and
// MemoryStore, used for local development and tests. Both run InTx callbacks
// all-or-nothing: an error returned from the callback discards every write
// made through the Tx handle.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
)

// ErrNotFound is returned when a requested game, user or participant does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when a game is not in the lifecycle state an operation requires.
var ErrInvalidState = errors.New("game is not in the required state")

// ErrGameFull is returned when a game has no remaining participant slots.
var ErrGameFull = errors.New("game is already full")

// ErrAlreadyApplied is returned when a user applies to the same game twice.
var ErrAlreadyApplied = errors.New("user already applied to this game")

// ErrInsufficientTickets is returned when a ticket spend would drive the balance negative.
var ErrInsufficientTickets = errors.New("insufficient tickets")

// ErrInvalidRankings is returned when a submitted ranking list is malformed.
var ErrInvalidRankings = errors.New("invalid rankings")

// ErrUserConflict is returned when a nickname or email is already taken by another user.
var ErrUserConflict = errors.New("nickname or email already in use")

// Store is the persistent state of the ladder.
type Store interface {
	GetGame(ctx context.Context, id string) (*model.Game, error)
	ListGames(ctx context.Context) ([]model.GameSummary, error)
	CreateGame(ctx context.Context, req model.CreateGameRequest) (*model.Game, error)
	CountParticipants(ctx context.Context, gameID string) (int, error)
	GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error)
	ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error)
	ListUserApplications(ctx context.Context, userID string) ([]model.Application, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CountUsers(ctx context.Context) (int, error)

	// EnsureUser inserts u unless a user with its ID already exists, and
	// reports whether it was inserted. Existing users are left untouched.
	EnsureUser(ctx context.Context, u model.User) (bool, error)

	// UpdateUserProfile changes the profile fields set in upd.
	UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)

	// RankedUsers returns users ordered by PPI descending then ID ascending,
	// each carrying its standard competition rank. limit and offset must not
	// be negative.
	RankedUsers(ctx context.Context, limit, offset int) ([]model.RankingEntry, error)
	UserRanking(ctx context.Context, userID string) (*model.RankingEntry, error)

	// StartDueGames moves PLANNED games scheduled at or before now to
	// PROGRESS and returns their IDs.
	StartDueGames(ctx context.Context, now time.Time) ([]string, error)

	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write handle passed to Store.InTx.
type Tx interface {
	// LockGame reads a game and holds it against concurrent writers until
	// the transaction ends.
	LockGame(ctx context.Context, id string) (*model.Game, error)
	CountParticipants(ctx context.Context, gameID string) (int, error)
	GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error)
	ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error)
	CreateParticipant(ctx context.Context, p *model.Participant) error

	// SpendTicket decrements the user's ticket balance by one only if the
	// balance is at least one at write time.
	SpendTicket(ctx context.Context, userID string) error
	UpdateParticipantResult(ctx context.Context, gameID, userID string, rank, ppiChange, ticketChange int) error

	// AdjustUser applies relative increments to PPI and ticket balance.
	AdjustUser(ctx context.Context, userID string, ppiDelta, ticketDelta int) error
	UpdateGameStatus(ctx context.Context, gameID string, status model.GameStatus) error
}
