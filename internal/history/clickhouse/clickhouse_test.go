package clickhouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/craftd/internal/history"
	"github.com/loykin/craftd/internal/store"
)

// fakeConn records executed statements. Embedding driver.Conn keeps the
// interface satisfied without stubbing methods the sink never calls.
type fakeConn struct {
	driver.Conn
	pingErr error
	execErr error
	queries []string
	args    [][]any
	closed  bool
}

func (f *fakeConn) Ping(context.Context) error { return f.pingErr }

func (f *fakeConn) Exec(_ context.Context, query string, args ...any) error {
	if f.execErr != nil {
		return f.execErr
	}
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestNewSinkCreatesTable(t *testing.T) {
	conn := &fakeConn{}
	s, err := newSink(conn, "")
	if err != nil {
		t.Fatalf("newSink: %v", err)
	}
	if s.table != "server_history" {
		t.Fatalf("default table = %q", s.table)
	}
	if len(conn.queries) != 1 {
		t.Fatalf("want 1 setup statement, got %d", len(conn.queries))
	}
	ddl := conn.queries[0]
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS server_history") ||
		!strings.Contains(ddl, "MergeTree") {
		t.Fatalf("unexpected schema statement: %q", ddl)
	}
}

func TestNewSinkFailsClosed(t *testing.T) {
	conn := &fakeConn{pingErr: errors.New("no route")}
	if _, err := newSink(conn, "t"); err == nil {
		t.Fatal("ping failure must surface")
	}
	if !conn.closed {
		t.Fatal("connection leaked after ping failure")
	}

	conn = &fakeConn{execErr: errors.New("DDL rejected")}
	if _, err := newSink(conn, "t"); err == nil {
		t.Fatal("schema failure must surface")
	}
	if !conn.closed {
		t.Fatal("connection leaked after schema failure")
	}
}

func TestSendInsertsEvent(t *testing.T) {
	conn := &fakeConn{}
	s, err := newSink(conn, "events")
	if err != nil {
		t.Fatal(err)
	}

	started := time.Now().Add(-time.Minute)
	rec := store.Record{Name: "survival", PID: 42, StartedAt: started, Running: true, Uniq: "k"}
	if err := s.Send(context.Background(), history.Event{
		Type:       history.EventStart,
		OccurredAt: started,
		Record:     rec,
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// queries[0] is the schema statement from newSink.
	if len(conn.queries) != 2 || !strings.Contains(conn.queries[1], "INSERT INTO events") {
		t.Fatalf("insert missing: %v", conn.queries)
	}
	args := conn.args[1]
	if args[0] != "start" || args[2] != "survival" {
		t.Fatalf("insert args = %v", args)
	}
	// Open-ended session: stopped_at and exit_code stay NULL.
	if args[5] != nil || args[7] != nil {
		t.Fatalf("nullable fields must be nil for a running session: %v", args)
	}
}
