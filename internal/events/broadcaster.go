package events

import (
	"log/slog"
	"sync"

	"github.com/loykin/craftd/internal/status"
)

// Event names pushed to web clients.
const (
	EventStatusUpdate       = "status_update"        // room-scoped
	EventConsoleLogBatch    = "console_log_batch"    // room-scoped
	EventServerStatusUpdate = "server_status_update" // global
)

// ServerDetail is the recomputed server view pushed on status changes.
type ServerDetail struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Status   status.Code `json:"status"`
	ExitCode *int        `json:"exit_code,omitempty"`
	PID      int         `json:"pid,omitempty"`
}

// Subscriber receives structured events. Implementations must be safe for
// concurrent Send calls; a Send error marks the subscriber dead.
type Subscriber interface {
	Send(event string, payload any) error
}

// PluginConn is one connected companion plugin socket.
type PluginConn interface {
	ServerName() string
	SendRaw(data []byte) error
}

// PluginSet is the live set of plugin connections, owned elsewhere.
type PluginSet interface {
	Conns() []PluginConn
	Remove(c PluginConn)
}

// relayable lists plugin event names that are forwarded to other plugins in
// the same group. Everything else stays local.
var relayable = map[string]bool{
	"mcdr.user_info":     true,
	"mcdr.player_joined": true,
	"mcdr.player_left":   true,
}

// Broadcaster fans status and log events out to web clients grouped by
// server-id room plus a global listener set, and relays selected plugin
// events to companion connections sharing a group. Web and plugin delivery
// are independent failure domains.
type Broadcaster struct {
	mu     sync.Mutex
	rooms  map[int64]map[Subscriber]struct{}
	global map[Subscriber]struct{}

	detail  func(serverID int64) (ServerDetail, bool)
	plugins PluginSet
	// server name -> set of group names
	memberships map[string]map[string]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		rooms:       make(map[int64]map[Subscriber]struct{}),
		global:      make(map[Subscriber]struct{}),
		memberships: make(map[string]map[string]bool),
	}
}

// SetDetailFunc injects the status recomputation used by NotifyStatusChange.
func (b *Broadcaster) SetDetailFunc(f func(serverID int64) (ServerDetail, bool)) {
	b.mu.Lock()
	b.detail = f
	b.mu.Unlock()
}

// SetPlugins injects the live plugin connection set.
func (b *Broadcaster) SetPlugins(ps PluginSet) {
	b.mu.Lock()
	b.plugins = ps
	b.mu.Unlock()
}

// SetGroups replaces group definitions (group name -> member server names).
func (b *Broadcaster) SetGroups(groups map[string][]string) {
	m := make(map[string]map[string]bool)
	for group, members := range groups {
		for _, name := range members {
			if m[name] == nil {
				m[name] = make(map[string]bool)
			}
			m[name][group] = true
		}
	}
	b.mu.Lock()
	b.memberships = m
	b.mu.Unlock()
}

// AddClient registers a web client as a global listener.
func (b *Broadcaster) AddClient(s Subscriber) {
	b.mu.Lock()
	b.global[s] = struct{}{}
	b.mu.Unlock()
}

// RemoveClient drops a web client from the global set and every room.
func (b *Broadcaster) RemoveClient(s Subscriber) {
	b.mu.Lock()
	delete(b.global, s)
	for id, room := range b.rooms {
		delete(room, s)
		if len(room) == 0 {
			delete(b.rooms, id)
		}
	}
	b.mu.Unlock()
}

// Subscribe joins a web client to a server's room.
func (b *Broadcaster) Subscribe(serverID int64, s Subscriber) {
	b.mu.Lock()
	room := b.rooms[serverID]
	if room == nil {
		room = make(map[Subscriber]struct{})
		b.rooms[serverID] = room
	}
	room[s] = struct{}{}
	b.mu.Unlock()
}

// Unsubscribe removes a web client from a server's room.
func (b *Broadcaster) Unsubscribe(serverID int64, s Subscriber) {
	b.mu.Lock()
	if room := b.rooms[serverID]; room != nil {
		delete(room, s)
		if len(room) == 0 {
			delete(b.rooms, serverID)
		}
	}
	b.mu.Unlock()
}

// NotifyStatusChange recomputes the server detail and pushes it to the global
// listener set and the server's room.
func (b *Broadcaster) NotifyStatusChange(serverID int64) {
	b.mu.Lock()
	detail := b.detail
	b.mu.Unlock()
	if detail == nil {
		return
	}
	d, ok := detail(serverID)
	if !ok {
		return
	}
	b.send(b.globalSnapshot(), EventServerStatusUpdate, d)
	b.send(b.roomSnapshot(serverID), EventStatusUpdate, d)
}

// EmitLogBatch pushes one ordered batch of console lines to the server's room.
func (b *Broadcaster) EmitLogBatch(serverID int64, lines []string) {
	b.send(b.roomSnapshot(serverID), EventConsoleLogBatch, map[string]any{"logs": lines})
}

func (b *Broadcaster) globalSnapshot() []Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Subscriber, 0, len(b.global))
	for s := range b.global {
		out = append(out, s)
	}
	return out
}

func (b *Broadcaster) roomSnapshot(serverID int64) []Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.rooms[serverID]
	out := make([]Subscriber, 0, len(room))
	for s := range room {
		out = append(out, s)
	}
	return out
}

func (b *Broadcaster) send(subs []Subscriber, event string, payload any) {
	for _, s := range subs {
		if err := s.Send(event, payload); err != nil {
			slog.Warn("dropping dead web subscriber", "event", event, "error", err)
			b.RemoveClient(s)
		}
	}
}

// RelayToPlugins forwards a whitelisted plugin event verbatim to every
// connected plugin whose bound server shares at least one group with the
// source server, skipping the origin connection. Connections whose send
// fails are reaped from the active set.
func (b *Broadcaster) RelayToPlugins(event, sourceServer string, origin PluginConn, payload []byte) {
	if !relayable[event] {
		return
	}
	b.mu.Lock()
	plugins := b.plugins
	sourceGroups := b.memberships[sourceServer]
	memberships := b.memberships
	b.mu.Unlock()
	if plugins == nil || len(sourceGroups) == 0 {
		return
	}
	for _, c := range plugins.Conns() {
		if c == origin {
			continue
		}
		name := c.ServerName()
		if name == "" || !sharesGroup(sourceGroups, memberships[name]) {
			continue
		}
		if err := c.SendRaw(payload); err != nil {
			slog.Warn("reaping dead plugin connection", "server", name, "error", err)
			plugins.Remove(c)
		}
	}
}

func sharesGroup(a, b map[string]bool) bool {
	for g := range a {
		if b[g] {
			return true
		}
	}
	return false
}
