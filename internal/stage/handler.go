package stage

import (
	"context"

	"scribe/internal/queue"
)

// Handler describes the contract the workflow dispatcher needs from each
// pipeline stage. Prepare runs quick local setup before the stage's status is
// announced; Execute performs the work and mutates the task in place. The
// dispatcher persists the task after each call.
type Handler interface {
	Prepare(context.Context, *queue.Task) error
	Execute(context.Context, *queue.Task) error
	HealthCheck(context.Context) Health
}
