package api

import (
	"context"

	"github.com/neexbeast/parkwait/internal/scheduler"
)

// Ingestor is the scheduler surface the handlers need.
type Ingestor interface {
	Status() scheduler.Status
	TriggerAsync(ctx context.Context) bool
}

// Pinger is a backing service checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
