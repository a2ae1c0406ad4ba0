// Package http exposes the task status API over gin.
package http

import (
	"net/http"
	"time"

	"counsel/internal/infra/observability"
	"counsel/internal/shared/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const defaultMaxBodyBytes int64 = 64 << 10

// RouterDeps are the collaborators of the router.
type RouterDeps struct {
	Tasks   TaskService
	Metrics *observability.MetricsCollector
	Logger  logging.Logger
}

// RouterConfig tunes the router.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimit    RateLimitConfig
	MaxBodyBytes int64
	Debug        bool
}

// NewRouter builds the gin engine with every endpoint.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.OrNop(deps.Logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logIDMiddleware(logger))
	engine.Use(observabilityMiddleware(deps.Metrics))
	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = cfg.CORSOrigins
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", headerOwnerID, headerTenantID, headerLogID}
		corsConfig.ExposeHeaders = []string{headerLogID}
		corsConfig.MaxAge = 12 * time.Hour
		engine.Use(cors.New(corsConfig))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if handler := deps.Metrics.Handler(); handler != nil {
		engine.GET("/metrics", gin.WrapH(handler))
	}

	tasks := NewTaskHandler(deps.Tasks, cfg.MaxBodyBytes, logger)
	api := engine.Group("/api/agent", identityMiddleware())
	{
		api.POST("/tasks", rateLimitMiddleware(cfg.RateLimit), tasks.HandleCreateTask)
		api.GET("/tasks", tasks.HandleListTasks)
		api.GET("/tasks/active", tasks.HandleActiveTask)
		api.GET("/tasks/:id", tasks.HandleGetTask)
		api.POST("/tasks/:id/rating", tasks.HandleRateTask)
		api.POST("/tasks/:id/resume", tasks.HandleResumeTask)
		api.GET("/tools", tasks.HandleListTools)
	}
	return engine
}
