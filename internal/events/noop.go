package events

import "context"

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Func adapts a function to the Publisher interface.
type Func func(ctx context.Context, topic string, event any) error

func (f Func) Publish(ctx context.Context, topic string, event any) error {
	return f(ctx, topic, event)
}

func (f Func) Close() error {
	return nil
}

// Multi fans each event out to every publisher. Publish returns the first
// error but still tries them all.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, event any) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
