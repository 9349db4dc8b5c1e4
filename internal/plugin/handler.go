package plugin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/craftd/internal/events"
	"github.com/loykin/craftd/internal/metrics"
	"github.com/loykin/craftd/internal/status"
	"github.com/loykin/craftd/internal/supervisor"
	"github.com/loykin/craftd/internal/tracker"
)

// Plugin event names. The lifecycle events adjust tracked state; the rest are
// candidates for group relay.
const (
	EventServerStartPending = "mcdr.server_start_pending"
	EventServerStartup      = "mcdr.server_startup"
	EventServerStop         = "mcdr.server_stop"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Plugins connect from localhost or trusted hosts; origin is not enforced.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// message is the wire envelope. A batch carries items, each itself an
// envelope with event and data.
type message struct {
	Batch bool              `json:"batch,omitempty"`
	Items []json.RawMessage `json:"items,omitempty"`
	Event string            `json:"event,omitempty"`
	Data  json.RawMessage   `json:"data,omitempty"`
}

type eventData struct {
	Server     string `json:"server"`
	ReturnCode *int   `json:"return_code"`
}

// Handler accepts companion plugin websockets and applies their lifecycle
// reports to tracked server state.
type Handler struct {
	table    *supervisor.Table
	tracker  *tracker.Tracker
	bc       *events.Broadcaster
	registry *Registry
}

func NewHandler(table *supervisor.Table, tr *tracker.Tracker, bc *events.Broadcaster, reg *Registry) *Handler {
	return &Handler{table: table, tracker: tr, bc: bc, registry: reg}
}

// Serve upgrades the request and pumps messages until the socket closes.
func (h *Handler) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("plugin websocket upgrade failed", "error", err)
		return
	}
	conn := newConn(ws)
	h.registry.Add(conn)
	metrics.AddPluginConns(1)
	defer func() {
		h.registry.Remove(conn)
		metrics.AddPluginConns(-1)
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.process(conn, raw)
	}
}

func (h *Handler) process(conn *Conn, raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("malformed plugin message dropped", "error", err)
		return
	}
	if msg.Batch {
		for _, item := range msg.Items {
			var inner message
			if err := json.Unmarshal(item, &inner); err != nil {
				slog.Warn("malformed batch item dropped", "error", err)
				continue
			}
			h.handleEvent(conn, inner, item)
		}
		return
	}
	h.handleEvent(conn, msg, raw)
}

func (h *Handler) handleEvent(conn *Conn, msg message, raw []byte) {
	if msg.Event == "" {
		return
	}
	var data eventData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			slog.Warn("malformed plugin event data dropped", "event", msg.Event, "error", err)
			return
		}
	}
	if data.Server == "" {
		data.Server = conn.ServerName()
	}
	if data.Server == "" {
		slog.Warn("plugin event without server binding dropped", "event", msg.Event)
		return
	}
	srv, ok := h.table.ByName(data.Server)
	if !ok {
		slog.Warn("plugin event for unknown server dropped", "event", msg.Event, "server", data.Server)
		return
	}
	conn.bind(srv.Name)

	switch msg.Event {
	case EventServerStartPending:
		if h.tracker.SetOverride(srv.ID, status.OverridePending) {
			h.bc.NotifyStatusChange(srv.ID)
		} else {
			slog.Warn("pending report after exit ignored", "server", srv.Name)
		}
	case EventServerStartup:
		if h.tracker.SetOverride(srv.ID, status.OverrideRunning) {
			h.bc.NotifyStatusChange(srv.ID)
		} else {
			slog.Warn("startup report after exit ignored", "server", srv.Name)
		}
	case EventServerStop:
		if data.ReturnCode != nil {
			h.tracker.SetLastExit(srv.ID, *data.ReturnCode)
		}
	default:
		// Non-lifecycle events are relayed (whitelist enforced downstream)
		// and otherwise ignored.
		h.bc.RelayToPlugins(msg.Event, srv.Name, conn, raw)
	}
}
