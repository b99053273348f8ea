// Package model defines the core domain types for the game ladder.
package model

import "time"

// GameStatus is a position in the game lifecycle.
type GameStatus string

const (
	GameStatusPlanned   GameStatus = "PLANNED"
	GameStatusProgress  GameStatus = "PROGRESS"
	GameStatusCompleted GameStatus = "COMPLETED"
)

// ParticipantStatus records how a user was admitted to a game.
type ParticipantStatus string

const (
	// ParticipantSuspended is queued without a ticket.
	ParticipantSuspended ParticipantStatus = "SUSPENDED"
	// ParticipantConfirmed is admitted, optionally via a ticket spend.
	ParticipantConfirmed ParticipantStatus = "CONFIRMED"
)

// Game is a scheduled match that users apply to.
type Game struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Place          string     `json:"place"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
	Status         GameStatus `json:"status"`
	MaxParticipant int        `json:"maxParticipant"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsFull returns true when count admitted participants leave no room.
func (g *Game) IsFull(count int) bool {
	return count >= g.MaxParticipant
}

// Participant is a user's entry in a game.
type Participant struct {
	GameID       string            `json:"gameId"`
	UserID       string            `json:"userId"`
	Status       ParticipantStatus `json:"status"`
	Rank         *int              `json:"rank"`
	PPIChange    int               `json:"ppiChange"`
	TicketChange int               `json:"ticketChange"`
	UsedTicket   bool              `json:"usedTicket"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// DefaultPPI is the rating every user starts with.
const DefaultPPI = 1000

// User holds the rating-relevant part of a user record.
type User struct {
	ID                string    `json:"id"`
	Nickname          string    `json:"nickname"`
	Email             string    `json:"email"`
	ProfilePictureURL *string   `json:"profilePictureUrl"`
	PPI               int       `json:"ppi"`
	TicketBalance     int       `json:"ticketBalance"`
	CreatedAt         time.Time `json:"createdAt"`
}

// UserView is a user as seen by one caller: either an OwnerView or a
// PublicView, decided once when the request is resolved.
type UserView interface {
	userView()
}

// PublicView is what any caller may see of a user.
type PublicView struct {
	ID                string    `json:"id"`
	Nickname          string    `json:"nickname"`
	ProfilePictureURL *string   `json:"profilePictureUrl"`
	PPI               int       `json:"ppi"`
	TicketBalance     int       `json:"ticketBalance"`
	CreatedAt         time.Time `json:"createdAt"`
}

// OwnerView is what a user sees of their own record.
type OwnerView struct {
	PublicView
	Email string `json:"email"`
}

func (PublicView) userView() {}
func (OwnerView) userView()  {}

// UserSummary is the public face of a user embedded in game views.
type UserSummary struct {
	ID                string  `json:"id"`
	Nickname          string  `json:"nickname"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
	PPI               int     `json:"ppi"`
}

// ParticipantView is a participant joined with its user.
type ParticipantView struct {
	Participant
	User UserSummary `json:"user"`
}

// GameSummary is a list entry for a game.
type GameSummary struct {
	Game
	ParticipantCount int          `json:"participantCount"`
	Winner           *UserSummary `json:"winner"`
}

// GameDetail is a game with its participants in standing order.
type GameDetail struct {
	Game
	Participants []ParticipantView `json:"participants"`
}

// Application is one entry of a user's apply list.
type Application struct {
	Participant
	Game Game `json:"game"`
}

// RankingEntry is one row of the leaderboard.
type RankingEntry struct {
	UserID            string  `json:"userId"`
	Nickname          string  `json:"nickname"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
	PPI               int     `json:"ppi"`
	Rank              int     `json:"rank"`
}

// RankingsPage is a paginated leaderboard view.
type RankingsPage struct {
	Rankings  []RankingEntry `json:"rankings"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
	MyRanking *RankingEntry  `json:"myRanking,omitempty"`
}

// PlayerRank is one submitted final placement.
type PlayerRank struct {
	UserID string `json:"userId"`
	Rank   int    `json:"rank"`
}

// CreateGameRequest is the payload for scheduling a new game.
type CreateGameRequest struct {
	Title          string    `json:"title"`
	Place          string    `json:"place"`
	ScheduledAt    time.Time `json:"scheduledAt"`
	MaxParticipant int       `json:"maxParticipant"`
}

// ProfileUpdate is the payload for editing one's own profile. Nil fields are
// left unchanged; an empty ProfilePictureURL clears the picture.
type ProfileUpdate struct {
	Nickname          *string `json:"nickname"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

// ApplyRequest is the payload for applying to a game.
type ApplyRequest struct {
	UseTicket bool `json:"useTicket"`
}

// FinishGameRequest is the payload for closing a game.
type FinishGameRequest struct {
	Rankings []PlayerRank `json:"rankings"`
}

// FinishResult acknowledges a completed game.
type FinishResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
