package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/cradle/internal/container"
	mng "github.com/loykin/cradle/internal/manager"
	"github.com/loykin/cradle/internal/metrics"
)

// Router provides embeddable HTTP handlers for the container tracker.
// Endpoints:
//
//	POST {basePath}/register      body: Spec JSON
//	POST {basePath}/start         query: ref=<id or name>
//	POST {basePath}/stop          query: ref=...
//	POST {basePath}/pause         query: ref=...
//	POST {basePath}/unpause       query: ref=...
//	POST {basePath}/remove        query: ref=...
//	GET  {basePath}/status        query: ref=... (single) or none (list)
//	GET  {basePath}/probes        query: ref=...
//	GET  {basePath}/history       query: name=...&limit=N
//	GET  {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
	metrics  bool
}

// NewRouter constructs a Router with a configurable basePath. Example
// basePath "/api" yields /api/register, /api/status, ...
func NewRouter(mgr *mng.Manager, basePath string, withMetrics bool) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath), metrics: withMetrics}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/register", r.handleRegister)
	group.POST("/start", r.lifecycle(r.mgr.Start))
	group.POST("/stop", r.lifecycle(r.mgr.Stop))
	group.POST("/pause", r.lifecycle(r.mgr.Pause))
	group.POST("/unpause", r.lifecycle(r.mgr.Unpause))
	group.POST("/remove", r.lifecycle(r.mgr.Remove))
	group.GET("/status", r.handleStatus)
	group.GET("/probes", r.handleProbes)
	group.GET("/history", r.handleHistory)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down via the returned http.Server.
func NewServer(addr, basePath string, withMetrics bool, mgr *mng.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath, withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleRegister(c *gin.Context) {
	var spec container.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error(), Code: codeBadRequest})
		return
	}
	if !isSafeName(spec.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{
			Error: "invalid spec.name: allowed [A-Za-z0-9._-] and no '..' or path separators",
			Code:  codeBadRequest,
		})
		return
	}
	st, err := r.mgr.Register(spec)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// lifecycle adapts a manager operation keyed by ref into a handler.
func (r *Router) lifecycle(op func(ref string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Query("ref")
		if ref == "" {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "ref query param required", Code: codeBadRequest})
			return
		}
		if err := op(ref); err != nil {
			writeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		writeJSON(c, http.StatusOK, r.mgr.List())
		return
	}
	st, err := r.mgr.Status(ref)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleProbes(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "ref query param required", Code: codeBadRequest})
		return
	}
	results, err := r.mgr.ProbeResults(ref)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, results)
}

func (r *Router) handleHistory(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required", Code: codeBadRequest})
		return
	}
	limit := 50
	if ls := c.Query("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := r.mgr.History(c.Request.Context(), name, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recs)
}
