package plugin

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/craftd/internal/events"
	"github.com/loykin/craftd/internal/status"
	"github.com/loykin/craftd/internal/supervisor"
	"github.com/loykin/craftd/internal/tracker"
)

func testHandler(t *testing.T) (*Handler, *tracker.Tracker, *events.Broadcaster, *Registry) {
	t.Helper()
	table := supervisor.NewTable([]supervisor.Server{
		{ID: 1, Name: "survival", Dir: "/srv/survival", Command: "x"},
		{ID: 2, Name: "creative", Dir: "/srv/creative", Command: "x"},
		{ID: 3, Name: "lobby", Dir: "/srv/lobby", Command: "x"},
	})
	tr := tracker.New()
	bc := events.NewBroadcaster()
	bc.SetDetailFunc(func(id int64) (events.ServerDetail, bool) {
		srv, ok := table.Get(id)
		if !ok {
			return events.ServerDetail{}, false
		}
		return events.ServerDetail{ID: srv.ID, Name: srv.Name, Status: status.Stopped}, true
	})
	bc.SetGroups(map[string][]string{"production": {"survival", "creative"}})
	reg := NewRegistry()
	bc.SetPlugins(reg)
	return NewHandler(table, tr, bc, reg), tr, bc, reg
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/api/plugin"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func startTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/plugin", h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func waitOverride(t *testing.T, tr *tracker.Tracker, id int64, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ov, ok := tr.Override(id); ok && ov == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	ov, _ := tr.Override(id)
	t.Fatalf("override for %d = %q, want %q", id, ov, want)
}

func TestLifecycleEventsUpdateTracker(t *testing.T) {
	h, tr, _, _ := testHandler(t)
	srv := startTestServer(t, h)
	ws := dial(t, srv.URL)

	send := func(v any) {
		t.Helper()
		if err := ws.WriteJSON(v); err != nil {
			t.Fatal(err)
		}
	}

	send(map[string]any{"event": EventServerStartPending, "data": map[string]any{"server": "survival"}})
	waitOverride(t, tr, 1, status.OverridePending)

	// Bound connection may omit the server field from now on.
	send(map[string]any{"event": EventServerStartup, "data": map[string]any{}})
	waitOverride(t, tr, 1, status.OverrideRunning)

	send(map[string]any{"event": EventServerStop, "data": map[string]any{"return_code": 3}})
	deadline := time.Now().Add(2 * time.Second)
	for tr.LastExit(1) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exit := tr.LastExit(1); exit == nil || *exit != 3 {
		t.Fatalf("last exit = %v, want 3", exit)
	}
}

func TestBatchMessagesAreUnpacked(t *testing.T) {
	h, tr, _, _ := testHandler(t)
	srv := startTestServer(t, h)
	ws := dial(t, srv.URL)

	batch := map[string]any{
		"batch": true,
		"items": []any{
			map[string]any{"event": EventServerStartPending, "data": map[string]any{"server": "creative"}},
			map[string]any{"event": EventServerStartup, "data": map[string]any{"server": "creative"}},
		},
	}
	if err := ws.WriteJSON(batch); err != nil {
		t.Fatal(err)
	}
	waitOverride(t, tr, 2, status.OverrideRunning)
}

func TestUnknownServerAndMalformedAreDropped(t *testing.T) {
	h, tr, _, reg := testHandler(t)
	srv := startTestServer(t, h)
	ws := dial(t, srv.URL)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(map[string]any{"event": EventServerStartup, "data": map[string]any{"server": "nope"}}); err != nil {
		t.Fatal(err)
	}
	// A valid message afterwards proves the connection survived.
	if err := ws.WriteJSON(map[string]any{"event": EventServerStartup, "data": map[string]any{"server": "survival"}}); err != nil {
		t.Fatal(err)
	}
	waitOverride(t, tr, 1, status.OverrideRunning)
	if reg.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", reg.Len())
	}
}

func TestRelayBetweenGroupMembers(t *testing.T) {
	h, _, _, _ := testHandler(t)
	srv := startTestServer(t, h)

	wsA := dial(t, srv.URL) // survival (production)
	wsB := dial(t, srv.URL) // creative (production)
	wsC := dial(t, srv.URL) // lobby (no group)

	bindByStartup := func(ws *websocket.Conn, name string) {
		t.Helper()
		if err := ws.WriteJSON(map[string]any{"event": EventServerStartup, "data": map[string]any{"server": name}}); err != nil {
			t.Fatal(err)
		}
	}
	bindByStartup(wsA, "survival")
	bindByStartup(wsB, "creative")
	bindByStartup(wsC, "lobby")
	// Give the server a moment to process bindings.
	time.Sleep(100 * time.Millisecond)

	chat := map[string]any{"event": "mcdr.user_info", "data": map[string]any{"server": "survival", "content": "hi"}}
	if err := wsA.WriteJSON(chat); err != nil {
		t.Fatal(err)
	}

	_ = wsB.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := wsB.ReadMessage()
	if err != nil {
		t.Fatalf("group member did not receive relay: %v", err)
	}
	var got struct {
		Event string `json:"event"`
		Data  struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Event != "mcdr.user_info" || got.Data.Content != "hi" {
		t.Fatalf("unexpected relay payload: %s", raw)
	}

	// The non-member and the origin must stay silent.
	_ = wsC.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := wsC.ReadMessage(); err == nil {
		t.Fatal("non-member received relayed event")
	}
	_ = wsA.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := wsA.ReadMessage(); err == nil {
		t.Fatal("origin received its own event")
	}
}
