package bootstrap

import (
	"strings"

	"mailbox_server/adapter/in/http"
	"mailbox_server/infra/middleware"
	"mailbox_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const maxRequestBody = 1 * 1024 * 1024

// NewAPI builds the fiber app with every route mounted.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             maxRequestBody,
		ServerHeader:          "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.MaxBodySize(maxRequestBody))

	// AllowCredentials:true requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	health := http.NewHealthHandler(deps.Scheduler, deps.Gmail)
	if deps.RedisState != nil {
		health.WithCheck("redis", deps.RedisState)
	}
	health.Register(app)

	api := app.Group("/api/v1")
	rateLimiter := middleware.NewRateLimiter(deps.rootCtx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	api.Use(rateLimiter.Handler())

	requireSession := middleware.SessionAuth(deps.Auth)

	// Login and callback are public, logout needs a session
	oauthHandler := http.NewOAuthHandler(deps.Auth, deps.Scheduler, deps.SSEAdapter, cfg.FrontendURL, cfg.IsProduction())
	oauthHandler.Register(api, requireSession)

	api.Use(requireSession)
	http.NewMailboxHandler(deps.Scheduler).Register(api)
	http.NewMessageHandler(deps.Compose, deps.Scheduler).Register(api)
	http.NewSSEHandler(deps.SSEHub, deps.ZLog).Register(api)

	logger.Info("API server initialized")
	return app
}
