package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pilltrack/pilltrack/internal/advisory"
	"github.com/pilltrack/pilltrack/internal/config"
	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/notify"
	"github.com/pilltrack/pilltrack/internal/store"
	"go.uber.org/zap"
)

// Server handles HTTP API and the reminder WebSocket stream
type Server struct {
	app       *fiber.App
	config    *config.Config
	store     *store.Store
	meds      *medication.Service
	advisor   *advisory.Advisor
	scheduler *notify.Scheduler
	logger    *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, st *store.Store, meds *medication.Service, advisor *advisory.Advisor, scheduler *notify.Scheduler, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		store:     st,
		meds:      meds,
		advisor:   advisor,
		scheduler: scheduler,
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check
	s.app.Get("/api/health", s.handleHealth)

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/login", s.handleLogin)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	// Medications
	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)

	// Doses
	protected.Get("/medications/:id/occurrences", s.handleOccurrences)
	protected.Post("/medications/:id/doses", s.handleSetDoseStatus)
	protected.Post("/medications/:id/doses/reasons", s.handleMissedReasons)
	protected.Post("/medications/:id/refill", s.handleRefill)
	protected.Get("/medications/:id/refills", s.handleRefillHistory)
	protected.Post("/medications/:id/prn", s.handleConfigurePRN)
	protected.Post("/medications/:id/prn/take", s.handleTakePRN)
	protected.Post("/undo", s.handleUndo)
	protected.Get("/missed", s.handleMissedScan)

	// Reports
	protected.Get("/reports/adherence", s.handleAdherence)
	protected.Get("/reports/streak", s.handleStreak)
	protected.Get("/reports/weekly", s.handleWeeklySummary)

	// Advisory
	protected.Get("/interactions", s.handleInteractions)

	// Snapshots
	protected.Get("/preferences", s.handleGetPreferences)
	protected.Put("/preferences", s.handleSetPreferences)
	protected.Get("/symptoms", s.handleListSymptoms)
	protected.Post("/symptoms", s.handleAddSymptom)
	protected.Get("/emergency", s.handleGetEmergency)
	protected.Put("/emergency", s.handleSetEmergency)

	// Export, audit, metrics
	protected.Get("/export/medications", s.handleExportMedications)
	protected.Get("/export/history", s.handleExportHistory)
	protected.Get("/audit", s.handleAudit)
	protected.Get("/metrics", s.handleMetrics)

	// WebSocket reminder stream
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if s.config.Security.Password != "" && req.Password != s.config.Security.Password {
		return c.Status(401).JSON(fiber.Map{"error": "invalid password"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "default",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	if err := s.store.RecordAudit("login", "default", "API login"); err != nil {
		s.logger.Warn("failed to record login", zap.Error(err))
	}

	return c.JSON(fiber.Map{"token": tokenString})
}

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		return c.Next()
	}
}

// handleWebSocket streams reminder events to the client as they fire
func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer c.Close()

	events := s.scheduler.Subscribe()
	defer s.scheduler.Unsubscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				s.logger.Warn("websocket write error", zap.Error(err))
				return
			}
		}
	}
}
