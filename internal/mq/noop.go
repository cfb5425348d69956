package mq

import "context"

// NoopBackend discards every message. It is used when no broker is
// configured so that callers never need a nil check before publishing.
type NoopBackend struct{}

// NewNoopBackend constructs a backend that drops all messages.
func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

// Publish discards the message and returns an empty id.
func (n *NoopBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

// Close is a no-op.
func (n *NoopBackend) Close() error {
	return nil
}
