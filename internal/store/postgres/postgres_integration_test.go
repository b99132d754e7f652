package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/juriscope/juriscope-timeline/internal/store"
	"github.com/juriscope/juriscope-timeline/internal/store/storetest"
)

// makePGStore connects to JURISCOPE_POSTGRES_TEST_DSN when set, and otherwise
// starts a throwaway postgres container. Skips when neither is available.
func makePGStore(t *testing.T) store.Store {
	t.Helper()

	dsn := os.Getenv("JURISCOPE_POSTGRES_TEST_DSN")
	if dsn == "" {
		ctx := context.Background()
		ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("timeline"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			t.Skipf("JURISCOPE_POSTGRES_TEST_DSN not set and no Docker: %v", err)
		}
		t.Cleanup(func() { _ = ctr.Terminate(ctx) })
		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("container dsn: %v", err)
		}
	}

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range store.DefaultDDLStatements() {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply ddl: %v\n%s", err, stmt)
		}
	}
	return NewWithDB(db)
}

func TestPostgresStore_Compliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
