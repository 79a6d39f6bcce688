package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus couples a synchronous event bus with an asynchronous worker-pool
// variant. Instances are created and owned explicitly by the bootstrap;
// there is no package-level singleton, so tests and components never
// share hidden state.
type Bus struct {
	sync  evbus.Bus
	async *AsyncEventBus
}

// New creates a bus with the given number of async workers.
func New(workerNum int) *Bus {
	b := &Bus{
		sync:  evbus.New(),
		async: NewAsyncEventBus(workerNum),
	}
	b.async.Start()
	return b
}

// Publish delivers an event synchronously to sync subscribers.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.sync.Publish(topic, args...)
}

// PublishAsync queues an event for the worker pool. Publishers never
// block on subscribers; when the queue is full the event is dropped.
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	b.async.PublishAsync(topic, args...)
}

// Subscribe registers a handler for synchronously published events.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.sync.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler for events published via PublishAsync.
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.async.Subscribe(topic, fn)
}

// Unsubscribe removes a sync handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.sync.Unsubscribe(topic, fn)
}

// HasCallback reports whether the sync bus has subscribers for a topic.
func (b *Bus) HasCallback(topic string) bool {
	return b.sync.HasCallback(topic)
}

// WaitAsync blocks until queued async events have been handed to workers.
func (b *Bus) WaitAsync() {
	b.async.WaitAsync()
}

// Close stops the async workers.
func (b *Bus) Close() {
	b.async.Stop()
}
