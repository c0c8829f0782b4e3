// Package notify provides goGuard.Notifier implementations for delivering
// recovery tokens: a NATS publisher for production relays, a slog writer
// for development and a channel notifier for tests.
package notify
