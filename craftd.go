package craftd

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/craftd/internal/config"
	"github.com/loykin/craftd/internal/events"
	"github.com/loykin/craftd/internal/history"
	"github.com/loykin/craftd/internal/metrics"
	"github.com/loykin/craftd/internal/plugin"
	iapi "github.com/loykin/craftd/internal/server"
	"github.com/loykin/craftd/internal/status"
	"github.com/loykin/craftd/internal/store"
	"github.com/loykin/craftd/internal/supervisor"
	"github.com/loykin/craftd/internal/tracker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Server = supervisor.Server

type Options = supervisor.Options

type Status = status.Code

type ServerDetail = events.ServerDetail

type HistorySink = history.Sink

type Store = store.Store

type Record = store.Record

// ErrAlreadyRunning is returned by Start when the server already has a live
// supervised process.
var ErrAlreadyRunning = supervisor.ErrAlreadyRunning

// Panel is the embeddable control-panel core: the supervisor, the event
// fan-out and the HTTP surface wired together for a fixed set of servers.
type Panel struct {
	table    *supervisor.Table
	tracker  *tracker.Tracker
	bc       *events.Broadcaster
	sup      *supervisor.Supervisor
	registry *plugin.Registry
	router   *iapi.Router

	st   store.Store
	sink history.Sink
}

// New wires a Panel for the given servers and group definitions.
func New(servers []Server, groups map[string][]string, opt Options) *Panel {
	p := &Panel{
		table:    supervisor.NewTable(servers),
		tracker:  tracker.New(),
		bc:       events.NewBroadcaster(),
		registry: plugin.NewRegistry(),
	}
	p.sup = supervisor.New(p.tracker, p.bc, opt)
	ph := plugin.NewHandler(p.table, p.tracker, p.bc, p.registry)
	p.router = iapi.NewRouter(p.table, p.sup, p.bc, nil, ph)
	p.bc.SetDetailFunc(p.router.Detail)
	p.bc.SetPlugins(p.registry)
	p.bc.SetGroups(groups)
	p.sup.SetRecorders(p.recordStart, p.recordStop)
	return p
}

// SetStore enables session persistence and the sessions API.
func (p *Panel) SetStore(st store.Store) {
	p.st = st
	ph := plugin.NewHandler(p.table, p.tracker, p.bc, p.registry)
	p.router = iapi.NewRouter(p.table, p.sup, p.bc, st, ph)
	p.bc.SetDetailFunc(p.router.Detail)
}

// SetHistorySink enables lifecycle event export.
func (p *Panel) SetHistorySink(sink history.Sink) { p.sink = sink }

const recordTimeout = 5 * time.Second

func (p *Panel) recordStart(srv Server, pid int, at time.Time) {
	rec := store.Record{Name: srv.Name, PID: pid, StartedAt: at, Running: true}
	if p.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		_ = p.st.RecordStart(ctx, rec)
	}
	history.Emit(p.sink, history.Event{Type: history.EventStart, OccurredAt: at, Record: rec})
}

func (p *Panel) recordStop(srv Server, pid int, startedAt, stoppedAt time.Time, exitCode *int) {
	uniq := store.UniqueKey(srv.Name, pid, startedAt)
	if p.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		_ = p.st.RecordStop(ctx, uniq, stoppedAt, exitCode)
	}
	rec := store.Record{Name: srv.Name, PID: pid, StartedAt: startedAt, Uniq: uniq}
	if exitCode != nil {
		rec.ExitCode.Int64 = int64(*exitCode)
		rec.ExitCode.Valid = true
	}
	rec.StoppedAt.Time = stoppedAt
	rec.StoppedAt.Valid = true
	history.Emit(p.sink, history.Event{Type: history.EventStop, OccurredAt: stoppedAt, Record: rec})
}

// Servers lists the configured server descriptors.
func (p *Panel) Servers() []Server { return p.table.All() }

// Lookup resolves a server by id.
func (p *Panel) Lookup(id int64) (Server, bool) { return p.table.Get(id) }

func (p *Panel) Start(srv Server) (int, error)   { return p.sup.Start(srv) }
func (p *Panel) Stop(srv Server) error           { return p.sup.Stop(srv) }
func (p *Panel) Restart(srv Server) (int, error) { return p.sup.Restart(srv) }
func (p *Panel) Kill(srv Server) error           { return p.sup.Kill(srv) }

// SendCommand writes one console command to the server's stdin.
func (p *Panel) SendCommand(srv Server, text string) { p.sup.SendCommand(srv, text) }

// Status resolves the server's externally visible state and last exit code.
func (p *Panel) Status(srv Server) (Status, *int) { return p.sup.Status(srv) }

// Tail returns up to n recent console lines.
func (p *Panel) Tail(srv Server, n int) []string { return p.sup.Tail(srv, n) }

// Detail returns the pushed view of one server, as web clients see it.
func (p *Panel) Detail(id int64) (ServerDetail, bool) { return p.router.Detail(id) }

// Handler returns the HTTP surface for mounting into any mux or framework.
func (p *Panel) Handler() http.Handler { return p.router.Handler() }

// NewHTTPServer starts a standalone HTTP server on addr serving the panel API.
func (p *Panel) NewHTTPServer(addr string) *http.Server { return p.router.NewServer(addr) }

// NewHTTPSServer is NewHTTPServer over TLS.
func (p *Panel) NewHTTPSServer(addr string, tc *tls.Config) *http.Server {
	return p.router.NewTLSServer(addr, tc)
}

// LoadConfig parses and validates a TOML configuration file.
func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
