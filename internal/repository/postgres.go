package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

var _ Store = (*PostgresStore)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// InTx runs fn inside a single database transaction.
//
// Apply and finish both start with LockGame, which takes a row-level lock on
// the game (SELECT … FOR UPDATE). Concurrent transactions touching the same
// game queue behind that lock, so the participant count read after it cannot
// go stale before the insert, and a finish cannot interleave with an apply.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ─── Games ───────────────────────────────────────────────────────────────────

const gameColumns = `g.id, g.title, g.place, g.scheduled_at, g.status, g.max_participant, g.created_at`

func scanGame(row pgx.Row, extra ...any) (*model.Game, error) {
	var g model.Game
	dest := append([]any{&g.ID, &g.Title, &g.Place, &g.ScheduledAt, &g.Status, &g.MaxParticipant, &g.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &g, nil
}

func getGame(ctx context.Context, q querier, id string, forUpdate bool) (*model.Game, error) {
	sql := `SELECT ` + gameColumns + ` FROM games g WHERE g.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	g, err := scanGame(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

// GetGame returns a single game or ErrNotFound.
func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	return getGame(ctx, s.db, id, false)
}

// CreateGame inserts a new PLANNED game with a generated UUID.
func (s *PostgresStore) CreateGame(ctx context.Context, req model.CreateGameRequest) (*model.Game, error) {
	game := &model.Game{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Place:          req.Place,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Status:         model.GameStatusPlanned,
		MaxParticipant: req.MaxParticipant,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO games (id, title, place, scheduled_at, status, max_participant, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		game.ID, game.Title, game.Place, game.ScheduledAt, game.Status, game.MaxParticipant, game.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	return game, nil
}

// ListGames returns every game newest first, with its participant count and,
// once completed, the first-placed player.
func (s *PostgresStore) ListGames(ctx context.Context) ([]model.GameSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+gameColumns+`,
		        (SELECT COUNT(*) FROM participants c WHERE c.game_id = g.id),
		        w.id, w.nickname, w.profile_picture_url, w.ppi
		 FROM games g
		 LEFT JOIN LATERAL (
		     SELECT u.id, u.nickname, u.profile_picture_url, u.ppi
		     FROM participants p
		     JOIN users u ON u.id = p.user_id
		     WHERE p.game_id = g.id AND p.rank = 1 AND g.status = 'COMPLETED'
		     ORDER BY p.created_at ASC, p.user_id ASC
		     LIMIT 1
		 ) w ON true
		 ORDER BY g.created_at DESC, g.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.GameSummary
	for rows.Next() {
		var (
			count    int
			winnerID *string
			nickname *string
			picture  *string
			ppi      *int
		)
		g, err := scanGame(rows, &count, &winnerID, &nickname, &picture, &ppi)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		summary := model.GameSummary{Game: *g, ParticipantCount: count}
		if winnerID != nil {
			summary.Winner = &model.UserSummary{ID: *winnerID, Nickname: *nickname, ProfilePictureURL: picture, PPI: *ppi}
		}
		games = append(games, summary)
	}
	return games, rows.Err()
}

// StartDueGames flips every PLANNED game whose scheduled time has passed.
func (s *PostgresStore) StartDueGames(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE games SET status = $1
		 WHERE status = $2 AND scheduled_at <= $3
		 RETURNING id`,
		model.GameStatusProgress, model.GameStatusPlanned, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("start due games: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("start due games: %w", err)
	}
	return ids, nil
}

// ─── Participants ────────────────────────────────────────────────────────────

const participantColumns = `p.game_id, p.user_id, p.status, p.rank, p.ppi_change, p.ticket_change, p.used_ticket, p.created_at`

func participantDest(p *model.Participant) []any {
	return []any{&p.GameID, &p.UserID, &p.Status, &p.Rank, &p.PPIChange, &p.TicketChange, &p.UsedTicket, &p.CreatedAt}
}

func countParticipants(ctx context.Context, q querier, gameID string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE game_id = $1`, gameID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func getParticipant(ctx context.Context, q querier, gameID, userID string) (*model.Participant, error) {
	var p model.Participant
	err := q.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants p WHERE p.game_id = $1 AND p.user_id = $2`,
		gameID, userID,
	).Scan(participantDest(&p)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("participant %s/%s: %w", gameID, userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

func listParticipants(ctx context.Context, q querier, gameID string) ([]model.ParticipantView, error) {
	rows, err := q.Query(ctx,
		`SELECT `+participantColumns+`, u.id, u.nickname, u.profile_picture_url, u.ppi
		 FROM participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.game_id = $1
		 ORDER BY p.rank ASC NULLS LAST, p.created_at ASC, p.user_id ASC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []model.ParticipantView
	for rows.Next() {
		var v model.ParticipantView
		dest := append(participantDest(&v.Participant), &v.User.ID, &v.User.Nickname, &v.User.ProfilePictureURL, &v.User.PPI)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountParticipants returns the number of admitted and queued participants.
func (s *PostgresStore) CountParticipants(ctx context.Context, gameID string) (int, error) {
	return countParticipants(ctx, s.db, gameID)
}

// GetParticipant returns the participant row for (gameID, userID) or ErrNotFound.
func (s *PostgresStore) GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error) {
	return getParticipant(ctx, s.db, gameID, userID)
}

// ListParticipants returns a game's participants ordered by final rank
// (unranked last), then by application time.
func (s *PostgresStore) ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error) {
	return listParticipants(ctx, s.db, gameID)
}

// ListUserApplications returns every game the user applied to, latest scheduled first.
func (s *PostgresStore) ListUserApplications(ctx context.Context, userID string) ([]model.Application, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+participantColumns+`, `+gameColumns+`
		 FROM participants p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.user_id = $1
		 ORDER BY g.scheduled_at DESC, g.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var a model.Application
		g := &a.Game
		dest := append(participantDest(&a.Participant), &g.ID, &g.Title, &g.Place, &g.ScheduledAt, &g.Status, &g.MaxParticipant, &g.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// ─── Users & rankings ────────────────────────────────────────────────────────

// GetUser returns a single user or ErrNotFound.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).Scan(userDest(&u)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CountUsers returns the total number of users on the ladder.
func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

const userColumns = `id, nickname, email, profile_picture_url, ppi, ticket_balance, created_at`

func userDest(u *model.User) []any {
	return []any{&u.ID, &u.Nickname, &u.Email, &u.ProfilePictureURL, &u.PPI, &u.TicketBalance, &u.CreatedAt}
}

// EnsureUser inserts u unless a user with its ID already exists. A clash on
// nickname or email with a different user is ErrUserConflict.
func (s *PostgresStore) EnsureUser(ctx context.Context, u model.User) (bool, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Nickname, u.Email, u.ProfilePictureURL, u.PPI, u.TicketBalance, u.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return false, fmt.Errorf("user %s: %w", u.ID, ErrUserConflict)
		}
		return false, fmt.Errorf("ensure user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateUserProfile changes the nickname and/or picture. An empty picture
// URL stores NULL.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	var picture string
	if upd.ProfilePictureURL != nil {
		picture = *upd.ProfilePictureURL
	}
	var u model.User
	err := s.db.QueryRow(ctx,
		`UPDATE users
		 SET nickname = COALESCE($2, nickname),
		     profile_picture_url = CASE WHEN $3::boolean THEN NULLIF($4, '') ELSE profile_picture_url END
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, upd.Nickname, upd.ProfilePictureURL != nil, picture,
	).Scan(userDest(&u)...)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		case pgCode(err) == pgUniqueViolation:
			return nil, fmt.Errorf("user %s: %w", id, ErrUserConflict)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

// RANK() gives standard competition ranking: ties share the lower number and
// the next distinct rating skips ahead by the size of the tie.
const rankedUsersSQL = `SELECT id, nickname, profile_picture_url, ppi, RANK() OVER (ORDER BY ppi DESC) AS rank FROM users`

func scanRankings(rows pgx.Rows) ([]model.RankingEntry, error) {
	defer rows.Close()
	var out []model.RankingEntry
	for rows.Next() {
		var e model.RankingEntry
		if err := rows.Scan(&e.UserID, &e.Nickname, &e.ProfilePictureURL, &e.PPI, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RankedUsers returns one page of the leaderboard.
func (s *PostgresStore) RankedUsers(ctx context.Context, limit, offset int) ([]model.RankingEntry, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("ranked users: negative limit %d or offset %d", limit, offset)
	}
	rows, err := s.db.Query(ctx, rankedUsersSQL+` ORDER BY ppi DESC, id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ranked users: %w", err)
	}
	return scanRankings(rows)
}

// UserRanking returns the leaderboard entry for one user or ErrNotFound.
func (s *PostgresStore) UserRanking(ctx context.Context, userID string) (*model.RankingEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT * FROM (`+rankedUsersSQL+`) ranked WHERE id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("user ranking: %w", err)
	}
	entries, err := scanRankings(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ranking for %s: %w", userID, ErrNotFound)
	}
	return &entries[0], nil
}

// ─── Transaction handle ──────────────────────────────────────────────────────

type pgTx struct {
	q querier
}

func (t *pgTx) LockGame(ctx context.Context, id string) (*model.Game, error) {
	return getGame(ctx, t.q, id, true)
}

func (t *pgTx) CountParticipants(ctx context.Context, gameID string) (int, error) {
	return countParticipants(ctx, t.q, gameID)
}

func (t *pgTx) GetParticipant(ctx context.Context, gameID, userID string) (*model.Participant, error) {
	return getParticipant(ctx, t.q, gameID, userID)
}

func (t *pgTx) ListParticipants(ctx context.Context, gameID string) ([]model.ParticipantView, error) {
	return listParticipants(ctx, t.q, gameID)
}

func (t *pgTx) CreateParticipant(ctx context.Context, p *model.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO participants (game_id, user_id, status, rank, ppi_change, ticket_change, used_ticket, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.GameID, p.UserID, p.Status, p.Rank, p.PPIChange, p.TicketChange, p.UsedTicket, p.CreatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrAlreadyApplied
		case pgForeignKeyViolation:
			return fmt.Errorf("user %s: %w", p.UserID, ErrNotFound)
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (t *pgTx) SpendTicket(ctx context.Context, userID string) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET ticket_balance = ticket_balance - 1
		 WHERE id = $1 AND ticket_balance >= 1`,
		userID,
	)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return ErrInsufficientTickets
		}
		return fmt.Errorf("spend ticket: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("spend ticket: %w", err)
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return ErrInsufficientTickets
}

func (t *pgTx) UpdateParticipantResult(ctx context.Context, gameID, userID string, rank, ppiChange, ticketChange int) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE participants SET rank = $3, ppi_change = $4, ticket_change = $5
		 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, rank, ppiChange, ticketChange,
	)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s/%s: %w", gameID, userID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) AdjustUser(ctx context.Context, userID string, ppiDelta, ticketDelta int) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET ppi = ppi + $2, ticket_balance = ticket_balance + $3 WHERE id = $1`,
		userID, ppiDelta, ticketDelta,
	)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return ErrInsufficientTickets
		}
		return fmt.Errorf("adjust user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) UpdateGameStatus(ctx context.Context, gameID string, status model.GameStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE games SET status = $2 WHERE id = $1`, gameID, status)
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
