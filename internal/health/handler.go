package health

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dependable-calls/dce/internal/platform/httpx"
)

// Handler serves liveness and readiness endpoints.
type Handler struct {
	checker *Checker
}

// NewHandler constructs a health handler.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// Liveness always returns ok while the process is up.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs the dependency probes; degraded answers 503 so the load
// balancer rotates the instance out.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Run(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, report)
}

// PostgresCheck pings the connection pool.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{
		Name: "postgres",
		Probe: func(ctx context.Context) error {
			if pool == nil {
				return errors.New("pool not configured")
			}
			return pool.Ping(ctx)
		},
	}
}

// RedisCheck pings the cache.
func RedisCheck(client *redis.Client) Check {
	return Check{
		Name: "redis",
		Probe: func(ctx context.Context) error {
			if client == nil {
				return errors.New("client not configured")
			}
			return client.Ping(ctx).Err()
		},
	}
}

// BuildCheck verifies the binary carries its build version. An empty version
// means the release pipeline did not stamp the binary.
func BuildCheck(version string) Check {
	return Check{
		Name: "build",
		Probe: func(ctx context.Context) error {
			if version == "" {
				return errors.New("version not set")
			}
			return nil
		},
	}
}

// QueueCheck verifies the job queue broker is reachable.
func QueueCheck(inspector *asynq.Inspector) Check {
	return Check{
		Name: "queue",
		Probe: func(ctx context.Context) error {
			if inspector == nil {
				return errors.New("inspector not configured")
			}
			_, err := inspector.Queues()
			return err
		},
	}
}
