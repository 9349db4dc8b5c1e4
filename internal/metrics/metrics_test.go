package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be a no-op: %v", err)
	}
}

func TestHelpersRecord(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)
	IncStart("alpha")
	IncStop("alpha")
	IncKill("alpha")
	AddConsoleLines("alpha", 5)
	IncLogBatch("alpha")
	IncLogRotation("alpha")
	AddWebClients(1)
	AddPluginConns(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"craftd_server_starts_total",
		"craftd_console_lines_total",
		"craftd_events_web_clients",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
