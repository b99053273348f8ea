package repository

import (
	"context"
	"os"
	"testing"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testDSNEnv names a disposable PostgreSQL database. Its tables are
// truncated before every test.
const testDSNEnv = "LADDER_TEST_DSN"

func openPostgresStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE participants, games, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(pool)
}

func TestPostgresUpdateProfileStoresNullPicture(t *testing.T) {
	s := openPostgresStore(t)
	ctx := context.Background()
	seedUsers(t, s, storeUser("u1", 1000, 0))

	pic := "https://cdn.example.com/u1.png"
	if _, err := s.UpdateUserProfile(ctx, "u1", profilePicture(pic)); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	u, err := s.UpdateUserProfile(ctx, "u1", profilePicture(""))
	if err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	if u.ProfilePictureURL != nil {
		t.Fatalf("expected NULL picture, got %q", *u.ProfilePictureURL)
	}
}
