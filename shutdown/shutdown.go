package shutdown

import (
	"context"
	"os/signal"
)

// Context is canceled when the process is asked to stop, or with parent.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
