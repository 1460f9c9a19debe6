// Package notifier provides the async notification pipeline.
//
// The scheduling engine decides when and what to send; this service owns
// delivery: a bounded queue, a worker pool, token-bucket rate limiting,
// bounded retry with jittered backoff, and a short dedup window so a re-run
// transition does not spam the same text twice.
//
// Delivery is fire-and-forget from the engine's point of view: a failed send
// is logged and surfaced on the event bus, never retried synchronously inside
// a tick.
package notifier
