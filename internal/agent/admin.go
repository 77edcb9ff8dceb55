package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/observability"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const Version = "0.1.0"

// Admin serves local inspection and control routes for one registry and
// bridge.
type Admin struct {
	ID      string
	Started time.Time

	reg    *registry.Registry
	main   registry.Dispatcher
	bridge *bridge.Bridge
	router *gin.Engine
}

// NewAdmin builds the router. Registry mutations run through main.
func NewAdmin(id string, reg *registry.Registry, main registry.Dispatcher, b *bridge.Bridge, corsOrigins []string) *Admin {
	if main == nil {
		main = registry.Inline{}
	}
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{ID: id, Started: time.Now(), reg: reg, main: main, bridge: b, router: r}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler { return a.router }

func (a *Admin) registerRoutes() {
	r := a.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Started).String(),
			"service": a.ID,
			"version": Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		status := a.bridge.Status()
		code := http.StatusOK
		if status != bridge.StatusConnected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     code == http.StatusOK,
			"bridge":    status.String(),
			"client_id": a.bridge.ClientID(),
			"pending":   a.bridge.Pending(),
			"targets":   a.reg.Len(),
		})
	})

	r.GET("/targets", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"targets": a.reg.Snapshot()})
	})

	r.GET("/targets/:target", func(c *gin.Context) {
		view, ok := a.lookup(c.Param("target"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownTarget.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	r.POST("/targets/:target/actions/:action", func(c *gin.Context) {
		view, ok := a.lookup(c.Param("target"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownTarget.Error()})
			return
		}
		actionID := actionIDFor(view, c.Param("action"))
		if actionID == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownAction.Error()})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(strings.TrimSpace(string(payload))) == 0 {
			payload = []byte("{}")
		}
		if !gjson.ValidBytes(payload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload is not valid json"})
			return
		}

		if !a.reg.TakeAction(c.Request.Context(), view.ID, actionID, payload) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"taken": false, "action_id": actionID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"taken": true, "action_id": actionID})
	})

	r.POST("/targets/:target/rescan", func(c *gin.Context) {
		view, ok := a.lookup(c.Param("target"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownTarget.Error()})
			return
		}
		var (
			added int
			err   error
		)
		if callErr := a.main.Call(c.Request.Context(), func(context.Context) {
			added, err = a.reg.RescanTarget(view.ID)
		}); callErr != nil {
			err = callErr
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, registry.ErrUnknownTarget) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"target_id": view.ID, "added": added})
	})

	r.POST("/reconnect", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if err := a.bridge.Reconnect(ctx); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bridge": a.bridge.Status().String()})
	})
}

// lookup accepts a full target id or a display name.
func (a *Admin) lookup(target string) (registry.TargetView, bool) {
	if view, ok := a.reg.Target(target); ok {
		return view, true
	}
	return a.reg.Target(a.reg.TargetID(target))
}

// actionIDFor accepts a full action id or a member name.
func actionIDFor(view registry.TargetView, action string) string {
	for _, a := range view.Actions {
		if a.ID == action || a.Name == action {
			return a.ID
		}
	}
	return ""
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
