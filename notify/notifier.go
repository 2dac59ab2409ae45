// Package notify delivers human-readable status messages to operators. The
// sink is fire-and-forget: delivery failures are logged and never alter the
// payment workflow.
package notify

import "context"

// Notifier is the outbound notification channel the engine writes to.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Nop is a Notifier that discards every message. Used in tests and as the
// fallback when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
