package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-reservation/internal/logger"
)

// queryLogger logs every statement at DEBUG level when DB_DEBUG is set.
type queryLogger struct {
	log *logger.Logger
}

var _ bun.QueryHook = (*queryLogger)(nil)

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime).Round(time.Microsecond)
	if event.Err != nil {
		h.log.Debug("DATABASE", fmt.Sprintf("%s (%s) failed: %v", event.Query, took, event.Err))
		return
	}
	h.log.Debug("DATABASE", fmt.Sprintf("%s (%s)", event.Query, took))
}
