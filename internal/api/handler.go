package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gobinathr25/Supertrend/internal/engine"
	"github.com/Gobinathr25/Supertrend/internal/events"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Server wires the HTTP dashboard around the engine service.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Engine    engine.Service
	JWTSecret string
}

func NewServer(bus *events.Bus, database *db.Database, svc engine.Service, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware()) // Rate limiting
	// Security headers handled by Nginx
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Engine:    svc,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerOperator)
			auth.POST("/login", s.loginOperator)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/positions", s.getPositions)
			protected.GET("/trades", s.getTrades)
			protected.GET("/logs", s.getLogs)
			protected.GET("/risk", s.getRiskLimits)
			protected.PUT("/risk", s.updateRiskLimits)

			protected.POST("/engine/start", s.startEngine)
			protected.POST("/engine/stop", s.stopEngine)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
