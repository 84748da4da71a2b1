package server

import (
	"strings"

	"study-planner/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
)

// NewApp builds the fiber app with every route registered.
func NewApp(h *Handler, cfg config.ServerConfig) *fiber.App {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 20
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		BodyLimit:             bodyLimit * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(RequestLogger())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, HeaderSessionID}, ","),
	}))

	var (
		checkHandler = NewCheckHandler()
		check        = app.Group("/check")
		api          = app.Group("/", SessionID())
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	api.Post("/upload", h.HandleUpload)
	api.Post("/ingest", h.HandleIngest)
	api.Post("/generate-plan", h.HandleGeneratePlan)
	api.Post("/approve", h.HandleApprove)
	api.Get("/plans", h.HandleListPlans)
	api.Get("/plans/:id", h.HandleGetPlan)
	api.Post("/ask-doubt", h.HandleAskDoubt)
	api.Post("/generate-notes", h.HandleGenerateNotes)
	api.Get("/notes", h.HandleListNotes)
	api.Get("/new-chat", h.HandleNewChat)
	api.Get("/conversations", h.HandleListConversations)
	api.Get("/conversations/:id", h.HandleGetConversation)
	api.Get("/motivation", h.HandleMotivation)

	return app
}

type Server struct {
	app        *fiber.App
	listenAddr string
}

func NewServer(app *fiber.App, addr string) *Server {
	return &Server{app: app, listenAddr: addr}
}

// Run blocks until the listener stops.
func (s *Server) Run() error {
	log.Info().Str("addr", s.listenAddr).Msg("server listening")
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Stop() error {
	err := s.app.Shutdown()
	log.Info().Msg("server stopped")
	return err
}
