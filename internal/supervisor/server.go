package supervisor

import (
	"path/filepath"
	"sync"
)

// Server describes one managed Minecraft server instance. Descriptors come
// from the configuration/persistence layer and are read-only to the core.
type Server struct {
	ID          int64    `json:"id" mapstructure:"id"`
	Name        string   `json:"name" mapstructure:"name"`
	Dir         string   `json:"dir" mapstructure:"dir"`
	Command     string   `json:"command" mapstructure:"command"`
	StopCommand string   `json:"stop_command" mapstructure:"stop_command"`
	Env         []string `json:"env,omitempty" mapstructure:"env"`
}

// ConsoleLogPath is where the cleaned console stream is persisted.
func (s Server) ConsoleLogPath() string {
	return filepath.Join(s.Dir, "logs", "console.log")
}

// Table is the known-server lookup used by routers and the plugin handler.
type Table struct {
	mu     sync.RWMutex
	byID   map[int64]Server
	byName map[string]Server
	order  []int64
}

func NewTable(servers []Server) *Table {
	t := &Table{
		byID:   make(map[int64]Server, len(servers)),
		byName: make(map[string]Server, len(servers)),
	}
	for _, s := range servers {
		t.byID[s.ID] = s
		t.byName[s.Name] = s
		t.order = append(t.order, s.ID)
	}
	return t
}

func (t *Table) Get(id int64) (Server, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	return s, ok
}

func (t *Table) ByName(name string) (Server, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byName[name]
	return s, ok
}

func (t *Table) All() []Server {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Server, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}
