package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
)

// eachStore runs fn against every Store implementation. PostgreSQL is
// skipped unless a test database is configured.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore(nil)) })
	t.Run("postgres", func(t *testing.T) { fn(t, openPostgresStore(t)) })
}

func storeUser(id string, ppi, tickets int) model.User {
	return model.User{ID: id, Nickname: "nick-" + id, Email: id + "@example.com", PPI: ppi, TicketBalance: tickets}
}

func profilePicture(url string) model.ProfileUpdate {
	return model.ProfileUpdate{ProfilePictureURL: &url}
}

func seedUsers(t *testing.T, s Store, users ...model.User) {
	t.Helper()
	for _, u := range users {
		if _, err := s.EnsureUser(context.Background(), u); err != nil {
			t.Fatalf("EnsureUser %s: %v", u.ID, err)
		}
	}
}

var storeEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func seedGame(t *testing.T, s Store, capacity int) *model.Game {
	t.Helper()
	g, err := s.CreateGame(context.Background(), model.CreateGameRequest{Title: "g", ScheduledAt: storeEpoch, MaxParticipant: capacity})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	return g
}

func TestStoreInTxDiscardsWritesOnError(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 1))
		g := seedGame(t, s, 4)
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.InTx(ctx, func(tx Tx) error {
			if err := tx.CreateParticipant(ctx, &model.Participant{GameID: g.ID, UserID: "u1", Status: model.ParticipantConfirmed}); err != nil {
				return err
			}
			if err := tx.SpendTicket(ctx, "u1"); err != nil {
				return err
			}
			if err := tx.UpdateGameStatus(ctx, g.ID, model.GameStatusProgress); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if n, _ := s.CountParticipants(ctx, g.ID); n != 0 {
			t.Fatalf("participant survived rollback")
		}
		if u, _ := s.GetUser(ctx, "u1"); u.TicketBalance != 1 {
			t.Fatalf("ticket spend survived rollback: %d", u.TicketBalance)
		}
		if got, _ := s.GetGame(ctx, g.ID); got.Status != model.GameStatusPlanned {
			t.Fatalf("status change survived rollback: %s", got.Status)
		}
	})
}

func TestStoreCreateParticipantConflicts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 0))
		g := seedGame(t, s, 4)
		ctx := context.Background()
		p := func(user string) *model.Participant {
			return &model.Participant{GameID: g.ID, UserID: user, Status: model.ParticipantSuspended}
		}

		if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateParticipant(ctx, p("u1")) }); err != nil {
			t.Fatalf("CreateParticipant: %v", err)
		}
		if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateParticipant(ctx, p("u1")) }); !errors.Is(err, ErrAlreadyApplied) {
			t.Fatalf("expected ErrAlreadyApplied, got %v", err)
		}
		if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateParticipant(ctx, p("ghost")) }); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

// Concurrent inserts of the same pair bypass any read-then-write check;
// the store itself must let exactly one through.
func TestStoreCreateParticipantConcurrentDuplicate(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 0))
		g := seedGame(t, s, 4)
		ctx := context.Background()

		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = s.InTx(ctx, func(tx Tx) error {
					return tx.CreateParticipant(ctx, &model.Participant{GameID: g.ID, UserID: "u1", Status: model.ParticipantSuspended})
				})
			}()
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case !errors.Is(err, ErrAlreadyApplied):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 {
			t.Fatalf("expected exactly one insert, got %d", ok)
		}
		if n, _ := s.CountParticipants(ctx, g.ID); n != 1 {
			t.Fatalf("expected one participant, got %d", n)
		}
	})
}

func TestStoreTicketBalanceNeverNegative(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 1), storeUser("u2", 1000, 0))
		ctx := context.Background()

		if err := s.InTx(ctx, func(tx Tx) error { return tx.SpendTicket(ctx, "u2") }); !errors.Is(err, ErrInsufficientTickets) {
			t.Fatalf("expected ErrInsufficientTickets, got %v", err)
		}
		if err := s.InTx(ctx, func(tx Tx) error { return tx.SpendTicket(ctx, "ghost") }); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.InTx(ctx, func(tx Tx) error { return tx.AdjustUser(ctx, "u1", 5, -2) }); !errors.Is(err, ErrInsufficientTickets) {
			t.Fatalf("expected ErrInsufficientTickets, got %v", err)
		}
		if err := s.InTx(ctx, func(tx Tx) error { return tx.AdjustUser(ctx, "u1", -7, 1) }); err != nil {
			t.Fatalf("AdjustUser: %v", err)
		}
		if u, _ := s.GetUser(ctx, "u1"); u.PPI != 993 || u.TicketBalance != 2 {
			t.Fatalf("expected 993/2, got %d/%d", u.PPI, u.TicketBalance)
		}

		// two tickets, many concurrent spenders
		const workers = 8
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			spent int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.InTx(ctx, func(tx Tx) error { return tx.SpendTicket(ctx, "u1") })
				if err != nil && !errors.Is(err, ErrInsufficientTickets) {
					t.Errorf("SpendTicket: %v", err)
					return
				}
				if err == nil {
					mu.Lock()
					spent++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if spent != 2 {
			t.Fatalf("expected 2 spends, got %d", spent)
		}
		if u, _ := s.GetUser(ctx, "u1"); u.TicketBalance != 0 {
			t.Fatalf("expected empty balance, got %d", u.TicketBalance)
		}
	})
}

func TestStoreListParticipantsOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 0), storeUser("u2", 1000, 0), storeUser("u3", 1000, 0))
		g := seedGame(t, s, 4)
		ctx := context.Background()

		err := s.InTx(ctx, func(tx Tx) error {
			for _, id := range []string{"u1", "u2", "u3"} {
				if err := tx.CreateParticipant(ctx, &model.Participant{GameID: g.ID, UserID: id, Status: model.ParticipantSuspended}); err != nil {
					return err
				}
			}
			// u3 ranked, u1 and u2 left unranked
			return tx.UpdateParticipantResult(ctx, g.ID, "u3", 1, 0, 0)
		})
		if err != nil {
			t.Fatalf("InTx: %v", err)
		}

		ps, err := s.ListParticipants(ctx, g.ID)
		if err != nil {
			t.Fatalf("ListParticipants: %v", err)
		}
		if len(ps) != 3 {
			t.Fatalf("expected 3 participants, got %d", len(ps))
		}
		if got := []string{ps[0].UserID, ps[1].UserID, ps[2].UserID}; got[0] != "u3" || got[1] != "u1" || got[2] != "u2" {
			t.Fatalf("expected ranked first then application order, got %v", got)
		}
		if ps[0].User.Nickname != "nick-u3" {
			t.Fatalf("user not joined: %+v", ps[0].User)
		}
	})
}

func TestStoreRankedUsersCompetitionRanking(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s,
			storeUser("e", 1100, 0), storeUser("c", 1200, 0), storeUser("a", 1300, 0),
			storeUser("d", 1200, 0), storeUser("b", 1200, 0),
		)
		ctx := context.Background()

		all, err := s.RankedUsers(ctx, 10, 0)
		if err != nil {
			t.Fatalf("RankedUsers: %v", err)
		}
		wantIDs := []string{"a", "b", "c", "d", "e"}
		wantRanks := []int{1, 2, 2, 2, 5}
		if len(all) != len(wantIDs) {
			t.Fatalf("expected %d entries, got %+v", len(wantIDs), all)
		}
		for i := range wantIDs {
			if all[i].UserID != wantIDs[i] || all[i].Rank != wantRanks[i] {
				t.Fatalf("position %d: expected %s#%d, got %s#%d", i, wantIDs[i], wantRanks[i], all[i].UserID, all[i].Rank)
			}
		}

		tail, _ := s.RankedUsers(ctx, 10, 4)
		if len(tail) != 1 || tail[0].Rank != 5 {
			t.Fatalf("unexpected tail page: %+v", tail)
		}
		if none, _ := s.RankedUsers(ctx, 10, 5); len(none) != 0 {
			t.Fatalf("expected empty page, got %+v", none)
		}
		if _, err := s.RankedUsers(ctx, 10, -10); err == nil {
			t.Fatal("expected error for negative offset")
		}

		d, err := s.UserRanking(ctx, "d")
		if err != nil || d.Rank != 2 {
			t.Fatalf("expected d#2, got %+v, %v", d, err)
		}
		if _, err := s.UserRanking(ctx, "zz"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoreStartDueGames(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := seedGame(t, s, 4)
		future, err := s.CreateGame(ctx, model.CreateGameRequest{Title: "later", ScheduledAt: storeEpoch.Add(time.Hour), MaxParticipant: 2})
		if err != nil {
			t.Fatalf("CreateGame: %v", err)
		}

		ids, err := s.StartDueGames(ctx, storeEpoch)
		if err != nil {
			t.Fatalf("StartDueGames: %v", err)
		}
		if len(ids) != 1 || ids[0] != due.ID {
			t.Fatalf("expected only the due game, got %v", ids)
		}
		if g, _ := s.GetGame(ctx, future.ID); g.Status != model.GameStatusPlanned {
			t.Fatalf("future game moved to %s", g.Status)
		}
		if again, _ := s.StartDueGames(ctx, storeEpoch); len(again) != 0 {
			t.Fatalf("already started game picked again: %v", again)
		}
	})
}

func TestStoreEnsureUser(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.EnsureUser(ctx, storeUser("u1", 1100, 2))
		if err != nil || !created {
			t.Fatalf("expected creation, got %v, %v", created, err)
		}
		// existing ID wins, nothing is overwritten
		created, err = s.EnsureUser(ctx, storeUser("u1", 500, 0))
		if err != nil || created {
			t.Fatalf("expected no-op, got %v, %v", created, err)
		}
		if u, _ := s.GetUser(ctx, "u1"); u.PPI != 1100 || u.TicketBalance != 2 || u.CreatedAt.IsZero() {
			t.Fatalf("unexpected user: %+v", u)
		}

		clash := storeUser("u2", 1000, 0)
		clash.Email = "u1@example.com"
		if _, err := s.EnsureUser(ctx, clash); !errors.Is(err, ErrUserConflict) {
			t.Fatalf("expected ErrUserConflict, got %v", err)
		}
		if _, err := s.GetUser(ctx, "u2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("conflicting user was stored: %v", err)
		}
	})
}

func TestStoreUpdateUserProfile(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 0), storeUser("u2", 1000, 0))
		ctx := context.Background()
		nick := "ace"

		u, err := s.UpdateUserProfile(ctx, "u1", model.ProfileUpdate{Nickname: &nick})
		if err != nil {
			t.Fatalf("UpdateUserProfile: %v", err)
		}
		if u.Nickname != "ace" || u.Email != "u1@example.com" || u.PPI != 1000 {
			t.Fatalf("unexpected user: %+v", u)
		}

		u, err = s.UpdateUserProfile(ctx, "u1", profilePicture("https://cdn.example.com/a.png"))
		if err != nil {
			t.Fatalf("UpdateUserProfile: %v", err)
		}
		if u.Nickname != "ace" || u.ProfilePictureURL == nil || *u.ProfilePictureURL != "https://cdn.example.com/a.png" {
			t.Fatalf("unexpected user after picture update: %+v", u)
		}

		if _, err := s.UpdateUserProfile(ctx, "u2", model.ProfileUpdate{Nickname: &nick}); !errors.Is(err, ErrUserConflict) {
			t.Fatalf("expected ErrUserConflict, got %v", err)
		}
		if _, err := s.UpdateUserProfile(ctx, "ghost", model.ProfileUpdate{Nickname: &nick}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoreListGamesWinner(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		seedUsers(t, s, storeUser("u1", 1000, 0), storeUser("u2", 1000, 0))
		done := seedGame(t, s, 4)
		open := seedGame(t, s, 4)
		ctx := context.Background()

		err := s.InTx(ctx, func(tx Tx) error {
			for _, id := range []string{"u1", "u2"} {
				if err := tx.CreateParticipant(ctx, &model.Participant{GameID: done.ID, UserID: id, Status: model.ParticipantSuspended}); err != nil {
					return err
				}
			}
			if err := tx.UpdateParticipantResult(ctx, done.ID, "u2", 1, 12, 1); err != nil {
				return err
			}
			if err := tx.UpdateParticipantResult(ctx, done.ID, "u1", 2, -12, 1); err != nil {
				return err
			}
			return tx.UpdateGameStatus(ctx, done.ID, model.GameStatusCompleted)
		})
		if err != nil {
			t.Fatalf("InTx: %v", err)
		}

		games, err := s.ListGames(ctx)
		if err != nil {
			t.Fatalf("ListGames: %v", err)
		}
		byID := map[string]model.GameSummary{}
		for _, g := range games {
			byID[g.ID] = g
		}
		if g := byID[done.ID]; g.ParticipantCount != 2 || g.Winner == nil || g.Winner.ID != "u2" || g.Winner.Nickname != "nick-u2" {
			t.Fatalf("unexpected completed summary: %+v (winner %+v)", g, g.Winner)
		}
		if g, ok := byID[open.ID]; !ok || g.ParticipantCount != 0 || g.Winner != nil {
			t.Fatalf("unexpected open summary: %+v", g)
		}
	})
}
