package http

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/denwilliams/gmail-triage-assistant/infra/database"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
)

// HealthChecker is an optional backing store probed by /ready.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// CheckFunc adapts a plain function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	extra  map[string]HealthChecker
	status func() map[string]any
}

func NewHealthHandler(db *pgxpool.Pool, redis *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
		extra: make(map[string]HealthChecker),
	}
}

// WithCheck adds a named readiness probe, such as MongoDB or Neo4j.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	h.extra[name] = checker
	return h
}

// WithStatus attaches extra runtime details to /health, such as breaker state.
func (h *HealthHandler) WithStatus(fn func() map[string]any) *HealthHandler {
	h.status = fn
	return h
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		stats := metrics.GetDBPoolStats(h.db)
		body["db_pool"] = stats
		body["db_pool_health"] = metrics.AssessDBPoolHealth(stats)
	}
	if h.redis != nil {
		body["redis_pool"] = database.GetRedisStats(h.redis)
	}
	if h.status != nil {
		for k, v := range h.status() {
			body[k] = v
		}
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	probe := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	if h.db != nil {
		probe("postgres", h.db.Ping)
	} else {
		checks["postgres"] = "not configured"
	}

	if h.redis != nil {
		probe("redis", func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
	} else {
		checks["redis"] = "not configured"
	}

	names := make([]string, 0, len(h.extra))
	for name := range h.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		probe(name, h.extra[name].Ping)
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
