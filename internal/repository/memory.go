package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/google/uuid"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memState)(nil)
)

type participantKey struct {
	gameID string
	userID string
}

// memState is one consistent snapshot of every table.
type memState struct {
	games        map[string]model.Game
	participants map[participantKey]model.Participant
	users        map[string]model.User
	now          func() time.Time
}

func (s *memState) clone() *memState {
	return &memState{
		games:        maps.Clone(s.games),
		participants: maps.Clone(s.participants),
		users:        maps.Clone(s.users),
		now:          s.now,
	}
}

// MemoryStore is a development-only Store used when no database is configured.
// Transactions serialize on a single lock and run against a copy of the state
// that replaces the live one only when the callback succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore returns an empty MemoryStore. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{state: &memState{
		games:        make(map[string]model.Game),
		participants: make(map[participantKey]model.Participant),
		users:        make(map[string]model.User),
		now:          now,
	}}
}

// PutUser inserts or replaces a user record. Users are owned by the account
// service, so this is the only way they enter the memory store.
func (m *MemoryStore) PutUser(u model.User) {
	m.mutate(func(st *memState) {
		if u.CreatedAt.IsZero() {
			u.CreatedAt = st.now()
		}
		st.users[u.ID] = u
	})
}

// mutate applies fn to a copy of the state and publishes it.
func (m *MemoryStore) mutate(fn func(st *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	fn(work)
	m.state = work
}

// InTx runs fn against a private copy of the state and publishes the copy
// only if fn succeeds. Transactions are serialized.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) read() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Committed states are never mutated in place, so the pointer is a stable snapshot.
	return m.state
}

// GetGame returns a single game or ErrNotFound.
func (m *MemoryStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	return m.read().LockGame(ctx, id)
}

// CreateGame inserts a new PLANNED game with a generated UUID.
func (m *MemoryStore) CreateGame(ctx context.Context, req model.CreateGameRequest) (*model.Game, error) {
	var game model.Game
	m.mutate(func(st *memState) {
		game = model.Game{
			ID:             uuid.New().String(),
			Title:          req.Title,
			Place:          req.Place,
			ScheduledAt:    req.ScheduledAt.UTC(),
			Status:         model.GameStatusPlanned,
			MaxParticipant: req.MaxParticipant,
			CreatedAt:      st.now(),
		}
		st.games[game.ID] = game
	})
	return &game, nil
}

// ListGames returns every game newest first, with its participant count and,
// once completed, the first-placed player.
func (m *MemoryStore) ListGames(ctx context.Context) ([]model.GameSummary, error) {
	st := m.read()
	out := make([]model.GameSummary, 0, len(st.games))
	for _, g := range st.games {
		summary := model.GameSummary{Game: g}
		var winner *model.Participant
		for _, p := range st.participants {
			if p.GameID != g.ID {
				continue
			}
			summary.ParticipantCount++
			if g.Status == model.GameStatusCompleted && p.Rank != nil && *p.Rank == 1 {
				if winner == nil || participantBefore(p, *winner) {
					winner = &p
				}
			}
		}
		if winner != nil {
			u := st.users[winner.UserID]
			summary.Winner = &model.UserSummary{ID: u.ID, Nickname: u.Nickname, ProfilePictureURL: u.ProfilePictureURL, PPI: u.PPI}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// StartDueGames flips every PLANNED game whose scheduled time has passed.
func (m *MemoryStore) StartDueGames(ctx context.Context, now time.Time) ([]string, error) {
	var started []string
	m.mutate(func(st *memState) {
		for id, g := range st.games {
			if g.Status == model.GameStatusPlanned && !g.ScheduledAt.After(now) {
				g.Status = model.GameStatusProgress
				st.games[id] = g
				started = append(started, id)
			}
		}
	})
	sort.Strings(started)
	return started, nil
}

// CountParticipants returns the number of admitted and queued participants.
func (m *MemoryStore) CountParticipants(ctx context.Context, gameID string) (int, error) {
	return m.read().CountParticipants(ctx, gameID)
}

// GetParticipant returns the participant row for (gameID, userID) or ErrNotFound.
func (m *MemoryStore) GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error) {
	return m.read().GetParticipant(ctx, gameID, userID)
}

// ListParticipants returns a game's participants ordered by final rank
// (unranked last), then by application time.
func (m *MemoryStore) ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error) {
	return m.read().ListParticipants(ctx, gameID)
}

// ListUserApplications returns every game the user applied to, latest scheduled first.
func (m *MemoryStore) ListUserApplications(ctx context.Context, userID string) ([]model.Application, error) {
	st := m.read()
	var apps []model.Application
	for _, p := range st.participants {
		if p.UserID == userID {
			apps = append(apps, model.Application{Participant: p, Game: st.games[p.GameID]})
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		gi, gj := apps[i].Game, apps[j].Game
		if !gi.ScheduledAt.Equal(gj.ScheduledAt) {
			return gi.ScheduledAt.After(gj.ScheduledAt)
		}
		return gi.ID < gj.ID
	})
	return apps, nil
}

// GetUser returns a single user or ErrNotFound.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, ok := m.read().users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

// CountUsers returns the total number of users on the ladder.
func (m *MemoryStore) CountUsers(ctx context.Context) (int, error) {
	return len(m.read().users), nil
}

// RankedUsers returns one page of the leaderboard.
func (m *MemoryStore) RankedUsers(ctx context.Context, limit, offset int) ([]model.RankingEntry, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("ranked users: negative limit %d or offset %d", limit, offset)
	}
	all := m.read().rankings()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + min(limit, len(all)-offset)
	return all[offset:end], nil
}

// UserRanking returns the leaderboard entry for one user or ErrNotFound.
func (m *MemoryStore) UserRanking(ctx context.Context, userID string) (*model.RankingEntry, error) {
	for _, e := range m.read().rankings() {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("ranking for %s: %w", userID, ErrNotFound)
}

// EnsureUser inserts u unless its ID is already taken.
func (m *MemoryStore) EnsureUser(ctx context.Context, u model.User) (bool, error) {
	var (
		created bool
		err     error
	)
	m.mutate(func(st *memState) {
		if _, ok := st.users[u.ID]; ok {
			return
		}
		if other, taken := st.userWith(u.Nickname, u.Email); taken {
			err = fmt.Errorf("user %s clashes with %s: %w", u.ID, other, ErrUserConflict)
			return
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = st.now()
		}
		st.users[u.ID] = u
		created = true
	})
	return created, err
}

// UpdateUserProfile changes the profile fields set in upd.
func (m *MemoryStore) UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	var (
		out model.User
		err error
	)
	m.mutate(func(st *memState) {
		u, ok := st.users[id]
		if !ok {
			err = fmt.Errorf("user %s: %w", id, ErrNotFound)
			return
		}
		if upd.Nickname != nil && *upd.Nickname != u.Nickname {
			if other, taken := st.userWith(*upd.Nickname, ""); taken {
				err = fmt.Errorf("nickname held by %s: %w", other, ErrUserConflict)
				return
			}
			u.Nickname = *upd.Nickname
		}
		if upd.ProfilePictureURL != nil {
			u.ProfilePictureURL = nil
			if pic := *upd.ProfilePictureURL; pic != "" {
				u.ProfilePictureURL = &pic
			}
		}
		st.users[id] = u
		out = u
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// userWith returns the ID of a user already holding nickname or email.
func (s *memState) userWith(nickname, email string) (string, bool) {
	for id, u := range s.users {
		if (nickname != "" && u.Nickname == nickname) || (email != "" && u.Email == email) {
			return id, true
		}
	}
	return "", false
}

// rankings orders every user by PPI descending then ID ascending and assigns
// standard competition ranks.
func (s *memState) rankings() []model.RankingEntry {
	out := make([]model.RankingEntry, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, model.RankingEntry{UserID: u.ID, Nickname: u.Nickname, ProfilePictureURL: u.ProfilePictureURL, PPI: u.PPI})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PPI != out[j].PPI {
			return out[i].PPI > out[j].PPI
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		if i > 0 && out[i].PPI == out[i-1].PPI {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}

func participantBefore(a, b model.Participant) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}

// ─── Tx implementation ───────────────────────────────────────────────────────

func (s *memState) LockGame(ctx context.Context, id string) (*model.Game, error) {
	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return &g, nil
}

func (s *memState) CountParticipants(ctx context.Context, gameID string) (int, error) {
	n := 0
	for k := range s.participants {
		if k.gameID == gameID {
			n++
		}
	}
	return n, nil
}

func (s *memState) GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error) {
	p, ok := s.participants[participantKey{gameID, userID}]
	if !ok {
		return nil, fmt.Errorf("participant %s/%s: %w", gameID, userID, ErrNotFound)
	}
	return &p, nil
}

func (s *memState) ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error) {
	var out []model.ParticipantView
	for _, p := range s.participants {
		if p.GameID != gameID {
			continue
		}
		u := s.users[p.UserID]
		out = append(out, model.ParticipantView{
			Participant: p,
			User:        model.UserSummary{ID: u.ID, Nickname: u.Nickname, ProfilePictureURL: u.ProfilePictureURL, PPI: u.PPI},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		switch {
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		}
		return participantBefore(out[i].Participant, out[j].Participant)
	})
	return out, nil
}

func (s *memState) CreateParticipant(ctx context.Context, p *model.Participant) error {
	key := participantKey{p.GameID, p.UserID}
	if _, exists := s.participants[key]; exists {
		return ErrAlreadyApplied
	}
	if _, ok := s.users[p.UserID]; !ok {
		return fmt.Errorf("user %s: %w", p.UserID, ErrNotFound)
	}
	if _, ok := s.games[p.GameID]; !ok {
		return fmt.Errorf("game %s: %w", p.GameID, ErrNotFound)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.participants[key] = *p
	return nil
}

func (s *memState) SpendTicket(ctx context.Context, userID string) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.TicketBalance < 1 {
		return ErrInsufficientTickets
	}
	u.TicketBalance--
	s.users[userID] = u
	return nil
}

func (s *memState) UpdateParticipantResult(ctx context.Context, gameID, userID string, rank, ppiChange, ticketChange int) error {
	key := participantKey{gameID, userID}
	p, ok := s.participants[key]
	if !ok {
		return fmt.Errorf("participant %s/%s: %w", gameID, userID, ErrNotFound)
	}
	p.Rank = &rank
	p.PPIChange = ppiChange
	p.TicketChange = ticketChange
	s.participants[key] = p
	return nil
}

func (s *memState) AdjustUser(ctx context.Context, userID string, ppiDelta, ticketDelta int) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.TicketBalance+ticketDelta < 0 {
		return ErrInsufficientTickets
	}
	u.PPI += ppiDelta
	u.TicketBalance += ticketDelta
	s.users[userID] = u
	return nil
}

func (s *memState) UpdateGameStatus(ctx context.Context, gameID string, status model.GameStatus) error {
	g, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	g.Status = status
	s.games[gameID] = g
	return nil
}
