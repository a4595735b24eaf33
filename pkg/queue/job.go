package queue

import "context"

// Job is a named consumer bound to one message type. The recalibration and
// resolution jobs implement this.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one payload.
	Handle(ctx context.Context, payload interface{}) error
}
