// Package transport defines the outbound chat delivery boundary.
//
// The agent only sends: reminders, confirmation requests, and outcome
// notices. Inbound command handling lives with the surrounding system and
// reaches the engine through its command surface, so adapters here are
// delivery-only.
package transport

import "context"

// Adapter delivers a rendered message to a destination.
//
// Destination strings are adapter-specific: Slack uses "#channel" / "@user"
// / raw user IDs, Telegram uses numeric chat IDs. Send is fire-and-forget
// from the caller's point of view; failures are reported once and never
// retried by the adapter itself.
type Adapter interface {
	Name() string
	Send(ctx context.Context, destination, text string) error
}
