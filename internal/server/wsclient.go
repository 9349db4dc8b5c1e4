package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/craftd/internal/events"
	"github.com/loykin/craftd/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// webClient is one browser websocket. It implements events.Subscriber; every
// pushed event is one JSON frame {"event": ..., "data": ...}.
type webClient struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (w *webClient) Send(event string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(map[string]any{"event": event, "data": payload})
}

// clientCommand is what the browser sends: room membership changes.
type clientCommand struct {
	Subscribe   int64 `json:"subscribe,omitempty"`
	Unsubscribe int64 `json:"unsubscribe,omitempty"`
}

// handleWS upgrades a browser connection, registers it as a global listener
// and services room subscribe/unsubscribe commands until the socket closes.
func (r *Router) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("web websocket upgrade failed", "error", err)
		return
	}
	client := &webClient{ws: ws}
	r.bc.AddClient(client)
	metrics.AddWebClients(1)
	defer func() {
		r.bc.RemoveClient(client)
		metrics.AddWebClients(-1)
		_ = ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			slog.Warn("malformed web client command dropped", "error", err)
			continue
		}
		if cmd.Subscribe > 0 {
			r.bc.Subscribe(cmd.Subscribe, client)
		}
		if cmd.Unsubscribe > 0 {
			r.bc.Unsubscribe(cmd.Unsubscribe, client)
		}
	}
}

var _ events.Subscriber = (*webClient)(nil)
