package events

import "context"

// NoopPublisher drops every event. The server runs with it when no NATS
// URL is configured, so issue changes stay local to the node.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
