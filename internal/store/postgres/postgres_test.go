package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/loykin/craftd/internal/store"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgresContainer starts a PostgreSQL container for tests
// and returns a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	// Try to ping until timeout; helps when container reports ready but DB not yet accepting connections
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresSessionStore(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	started := time.Now().UTC()
	rec := store.Record{Name: "survival", PID: 4321, StartedAt: started}
	if err := db.RecordStart(ctx, rec); err != nil {
		t.Fatalf("record start: %v", err)
	}
	got, err := db.GetByName(ctx, "survival", 10)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(got) != 1 || !got[0].Running || got[0].PID != 4321 {
		t.Fatalf("unexpected record: %+v", got)
	}

	code := 0
	if err := db.RecordStop(ctx, rec.Key(), time.Now().UTC(), &code); err != nil {
		t.Fatalf("record stop: %v", err)
	}
	got, err = db.GetByName(ctx, "survival", 10)
	if err != nil {
		t.Fatalf("get by name after stop: %v", err)
	}
	if got[0].Running || !got[0].ExitCode.Valid || got[0].ExitCode.Int64 != 0 {
		t.Fatalf("unexpected stopped record: %+v", got[0])
	}

	// Simulated daemon restart with a session left open.
	if err := db.RecordStart(ctx, store.Record{Name: "creative", PID: 99, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	n, err := db.CloseOpenSessions(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("close open sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 stale session closed, got %d", n)
	}
}
