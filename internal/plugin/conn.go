package plugin

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/loykin/craftd/internal/events"
)

// Conn is one companion plugin websocket. The connection is anonymous until
// its first message names a server; binding happens once and never changes.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	server string
	sendMu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ServerName returns the bound server name, or "" while unbound.
func (c *Conn) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *Conn) bind(name string) {
	c.mu.Lock()
	if c.server == "" {
		c.server = name
	}
	c.mu.Unlock()
}

// SendRaw writes a pre-encoded message. Gorilla allows one concurrent writer,
// so writes are serialized here.
func (c *Conn) SendRaw(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) close() {
	_ = c.ws.Close()
}

// Registry is the live set of plugin connections.
type Registry struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Remove implements events.PluginSet: drops and closes the connection.
func (r *Registry) Remove(pc events.PluginConn) {
	c, ok := pc.(*Conn)
	if !ok {
		return
	}
	r.mu.Lock()
	_, present := r.conns[c]
	delete(r.conns, c)
	r.mu.Unlock()
	if present {
		c.close()
	}
}

// Conns implements events.PluginSet.
func (r *Registry) Conns() []events.PluginConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.PluginConn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
