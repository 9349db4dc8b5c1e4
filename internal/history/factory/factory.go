package factory

import (
	"fmt"
	"strings"

	"github.com/loykin/craftd/internal/history"
	ch "github.com/loykin/craftd/internal/history/clickhouse"
)

// New builds a history sink from a typed configuration. An empty type means
// history export is disabled and a nil sink is returned.
func New(sinkType, addr, table string) (history.Sink, error) {
	switch strings.ToLower(strings.TrimSpace(sinkType)) {
	case "":
		return nil, nil
	case "clickhouse":
		return ch.New(addr, table)
	default:
		return nil, fmt.Errorf("unknown history sink type: %s", sinkType)
	}
}
