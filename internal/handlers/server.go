package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/logging"
	"github.com/subitocasaweb/lead-intake/internal/services"
)

type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server

	incidents *logging.IncidentLog
	readiness services.Readiness
	sessions  *SessionStore

	forms   *services.FormService
	uploads *services.UploadService
	records *services.RecordService
	email   *services.EmailService
	push    *services.NotificationService
}

func NewServer(cfg *config.Config) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	incidents := logging.NewIncidentLog(cfg.ErrorLogPath())

	server := &Server{
		config:    cfg,
		router:    router,
		incidents: incidents,
		readiness: services.CheckStorage(cfg, incidents),
		sessions:  NewSessionStore(),
		forms:     services.NewFormService(cfg),
		uploads:   services.NewUploadService(cfg, incidents),
		records:   services.NewRecordService(cfg.RecordPath(), incidents),
		email:     services.NewEmailService(cfg, incidents),
		push:      services.NewNotificationService(cfg),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server
}

func (s *Server) setupMiddleware() {
	// CORS
	corsConfig := cors.Config{
		AllowOrigins:     s.config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	s.router.Use(cors.New(corsConfig))

	// Rate limiting
	if s.config.Server.RateLimiting.Enabled {
		s.router.Use(rateLimitMiddleware(s.config.Server.RateLimiting.RequestsPerMinute))
	}

	// Request logging
	s.router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Recovery middleware
	s.router.Use(gin.Recovery())
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// Submission boundary consumed by the presentation layer
	api := s.router.Group("/api")
	{
		api.GET("/form", s.getForm)
		api.POST("/form", s.submitLead)
	}

	// Stored attachments are publicly retrievable by relative path
	s.router.Static("/"+s.config.Storage.UploadURLPrefix, s.config.Storage.UploadDir)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func rateLimitMiddleware(requestsPerMinute int) gin.HandlerFunc {
	// Simple in-memory rate limiter
	var mu sync.Mutex
	clients := make(map[string][]time.Time)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		now := time.Now()

		mu.Lock()
		// Clean old entries
		var valid []time.Time
		for _, timestamp := range clients[clientIP] {
			if now.Sub(timestamp) < time.Minute {
				valid = append(valid, timestamp)
			}
		}

		if len(valid) >= requestsPerMinute {
			clients[clientIP] = valid
			mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		clients[clientIP] = append(valid, now)
		mu.Unlock()
		c.Next()
	}
}
