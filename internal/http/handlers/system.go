package handlers

import (
	"context"
	"net/http"
	"sync"

	"logbook/internal/store"

	"github.com/gin-gonic/gin"
)

var (
	routerMu sync.RWMutex
	router   *gin.Engine
)

// SetRouter stores the active gin engine for later inspection (e.g., /api/routes).
func SetRouter(r *gin.Engine) {
	routerMu.Lock()
	defer routerMu.Unlock()
	router = r
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "logbook is running"})
}

// DBCheck pings the durable store and reports the schema version and which
// collections are served from the local mirror.
func (a *API) DBCheck(c *gin.Context) {
	st := a.Facade.Store()
	if p, ok := st.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			unavailable(c, "database", err)
			return
		}
	}
	out := gin.H{"message": "database OK"}
	if v, ok := st.(interface {
		Version(context.Context) (int, error)
	}); ok {
		if version, err := v.Version(c.Request.Context()); err == nil {
			out["schemaVersion"] = version
			out["latestVersion"] = store.LatestVersion()
		}
	}
	mirrored := []string{}
	for _, coll := range store.All {
		if a.Facade.Policy().Mirrored(coll) {
			mirrored = append(mirrored, string(coll))
		}
	}
	out["mirrored"] = mirrored
	c.JSON(http.StatusOK, out)
}

func (a *API) Routes(c *gin.Context) {
	routerMu.RLock()
	r := router
	routerMu.RUnlock()
	if r == nil {
		unavailable(c, "route table", nil)
		return
	}

	routes := r.Routes()
	out := make([]gin.H, 0, len(routes))
	for _, rt := range routes {
		out = append(out, gin.H{
			"method": rt.Method,
			"path":   rt.Path,
		})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}
