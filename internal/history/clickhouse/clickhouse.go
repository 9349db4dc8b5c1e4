package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/craftd/internal/history"
)

// Sink sends server lifecycle events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return newSink(conn, table)
}

// newSink pings the connection and creates the event table, so a freshly
// constructed sink can accept events without further setup.
func newSink(conn driver.Conn, table string) (*Sink, error) {
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if table == "" {
		table = "server_history"
	}
	s := &Sink{conn: conn, table: table}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ensure ClickHouse schema: %w", err)
	}
	return s, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type String,
		occurred_at DateTime64(3),
		server_name String,
		pid Int32,
		started_at DateTime64(3),
		stopped_at Nullable(DateTime64(3)),
		running UInt8,
		exit_code Nullable(Int32),
		uniq String
	) ENGINE = MergeTree() ORDER BY (server_name, occurred_at)`, s.table)
	return s.conn.Exec(ctx, query)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, server_name, pid, started_at, stopped_at, running, exit_code, uniq) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var stoppedAt any
	if e.Record.StoppedAt.Valid {
		stoppedAt = e.Record.StoppedAt.Time
	}
	var exitCode any
	if e.Record.ExitCode.Valid {
		exitCode = int32(e.Record.ExitCode.Int64)
	}

	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.Record.Name,
		int32(e.Record.PID),
		e.Record.StartedAt,
		stoppedAt,
		e.Record.Running,
		exitCode,
		e.Record.Uniq,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
