package health

import (
	"context"
	"database/sql"
	"time"
)

// Service reports liveness and, when a database is configured, its reachability.
type Service struct {
	DB      *sql.DB
	Timeout time.Duration
}

// NewService constructs a health service. db may be nil for in-memory deployments.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db, Timeout: 2 * time.Second}
}

// Status returns the health payload and whether every check passed.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	out := map[string]any{"ok": true, "storage": "memory"}
	if s == nil || s.DB == nil {
		return out, true
	}
	out["storage"] = "postgres"

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["database"] = err.Error()
		return out, false
	}
	out["database"] = "ok"
	return out, true
}
