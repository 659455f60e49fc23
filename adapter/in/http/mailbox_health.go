package http

import (
	"context"
	"time"

	"mailbox_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SyncStats reports scheduler load.
type SyncStats interface {
	Watched() int
	Metrics() *metrics.SyncMetrics
}

// BreakerReporter exposes the state of the mail API circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

type HealthHandler struct {
	sync    SyncStats
	breaker BreakerReporter
	checks  map[string]HealthChecker
}

func NewHealthHandler(sync SyncStats, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{
		sync:    sync,
		breaker: breaker,
		checks:  make(map[string]HealthChecker),
	}
}

// WithCheck adds a dependency probed by /ready.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	h.checks[name] = checker
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, checker := range h.checks {
		if err := checker.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	body := fiber.Map{
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.breaker != nil {
		body["gmail_breaker"] = h.breaker.BreakerState()
	}
	if h.sync != nil {
		body["sessions"] = h.sync.Watched()
		body["sync"] = h.sync.Metrics().Snapshot()
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}
	body["status"] = status

	return c.Status(statusCode).JSON(body)
}
