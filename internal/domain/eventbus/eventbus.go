package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus is an instance-scoped event bus. Each shell owns one so tests and
// multiple shells in a process never share subscribers.
type Bus struct {
	bus   evbus.Bus
	async *AsyncEventBus
}

// New creates a bus whose async side runs workers goroutines.
func New(workers int) *Bus {
	b := evbus.New()
	async := newAsyncEventBus(b, workers)
	async.Start()
	return &Bus{bus: b, async: async}
}

// Publish delivers synchronously to every subscriber before returning.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// PublishAsync queues delivery on the worker pool. Full queues drop the event.
func (b *Bus) PublishAsync(topic string, args ...interface{}) bool {
	return b.async.PublishAsync(topic, args...)
}

func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Shutdown stops the async workers after draining queued events.
func (b *Bus) Shutdown() {
	b.async.Stop()
}
