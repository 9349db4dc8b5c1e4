package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/craftd/internal/events"
	"github.com/loykin/craftd/internal/plugin"
	"github.com/loykin/craftd/internal/store"
	"github.com/loykin/craftd/internal/supervisor"
)

// Router exposes the control-panel HTTP surface: the REST API, the browser
// event socket, the companion plugin socket and Prometheus metrics.
//
//	GET  /api/servers
//	GET  /api/servers/:id/status
//	POST /api/servers/:id/start
//	POST /api/servers/:id/stop
//	POST /api/servers/:id/restart
//	POST /api/servers/:id/kill
//	POST /api/servers/:id/command     body: {"command": "..."}
//	GET  /api/servers/:id/logs        query: limit
//	GET  /api/servers/:id/sessions    query: limit
//	GET  /api/plugin                  plugin websocket
//	GET  /ws                          browser websocket
//	GET  /metrics
type Router struct {
	table  *supervisor.Table
	sup    *supervisor.Supervisor
	bc     *events.Broadcaster
	st     store.Store
	plugin *plugin.Handler
}

func NewRouter(table *supervisor.Table, sup *supervisor.Supervisor, bc *events.Broadcaster, st store.Store, ph *plugin.Handler) *Router {
	return &Router{table: table, sup: sup, bc: bc, st: st, plugin: ph}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	api := g.Group("/api")
	api.GET("/servers", r.handleList)
	api.GET("/servers/:id/status", r.handleStatus)
	api.POST("/servers/:id/start", r.handleStart)
	api.POST("/servers/:id/stop", r.handleStop)
	api.POST("/servers/:id/restart", r.handleRestart)
	api.POST("/servers/:id/kill", r.handleKill)
	api.POST("/servers/:id/command", r.handleCommand)
	api.GET("/servers/:id/logs", r.handleLogs)
	api.GET("/servers/:id/sessions", r.handleSessions)
	if r.plugin != nil {
		api.GET("/plugin", r.plugin.Serve)
	}
	g.GET("/ws", r.handleWS)
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func (r *Router) NewServer(addr string) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// NewTLSServer is NewServer with a TLS listener. Certificates come from the
// supplied config; cert and key paths are resolved per handshake.
func (r *Router) NewTLSServer(addr string, tc *tls.Config) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         tc,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server
}

// Detail recomputes the pushed view of one server. Wired into the
// broadcaster's status recomputation.
func (r *Router) Detail(id int64) (events.ServerDetail, bool) {
	srv, ok := r.table.Get(id)
	if !ok {
		return events.ServerDetail{}, false
	}
	code, exit := r.sup.Status(srv)
	return events.ServerDetail{
		ID:       srv.ID,
		Name:     srv.Name,
		Status:   code,
		ExitCode: exit,
		PID:      r.sup.InnerPID(srv.ID),
	}, true
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// lookup resolves the :id parameter, writing the error response itself when
// the server is unknown.
func (r *Router) lookup(c *gin.Context) (supervisor.Server, bool) {
	id := parseID(c)
	if id == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid server id"})
		return supervisor.Server{}, false
	}
	srv, ok := r.table.Get(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown server"})
		return supervisor.Server{}, false
	}
	return srv, true
}

func (r *Router) handleList(c *gin.Context) {
	servers := r.table.All()
	out := make([]events.ServerDetail, 0, len(servers))
	for _, srv := range servers {
		d, _ := r.Detail(srv.ID)
		out = append(out, d)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleStatus(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	d, _ := r.Detail(srv.ID)
	writeJSON(c, http.StatusOK, d)
}

func (r *Router) handleStart(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	pid, err := r.sup.Start(srv)
	if err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true, "pid": pid})
}

func (r *Router) handleStop(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	if err := r.sup.Stop(srv); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	pid, err := r.sup.Restart(srv)
	if err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true, "pid": pid})
}

func (r *Router) handleKill(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	if err := r.sup.Kill(srv); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type commandReq struct {
	Command string `json:"command"`
}

func (r *Router) handleCommand(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	// Writing to a stopped server is a silent no-op in the supervisor, and the
	// same here: callers needing a guarantee check status first.
	r.sup.SendCommand(srv, req.Command)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogs(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	limit := parseLimit(c, 100)
	writeJSON(c, http.StatusOK, map[string]any{"logs": r.sup.Tail(srv, limit)})
}

type sessionResp struct {
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Running   bool       `json:"running"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

func (r *Router) handleSessions(c *gin.Context) {
	srv, ok := r.lookup(c)
	if !ok {
		return
	}
	if r.st == nil {
		writeJSON(c, http.StatusOK, []sessionResp{})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	recs, err := r.st.GetByName(ctx, srv.Name, parseLimit(c, 20))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	out := make([]sessionResp, 0, len(recs))
	for _, rec := range recs {
		sr := sessionResp{PID: rec.PID, StartedAt: rec.StartedAt, Running: rec.Running}
		if rec.StoppedAt.Valid {
			t := rec.StoppedAt.Time
			sr.StoppedAt = &t
		}
		if rec.ExitCode.Valid {
			code := int(rec.ExitCode.Int64)
			sr.ExitCode = &code
		}
		out = append(out, sr)
	}
	writeJSON(c, http.StatusOK, out)
}
