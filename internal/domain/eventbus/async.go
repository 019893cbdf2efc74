package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// AsyncEventBus fans published events out on a fixed worker pool.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopOnce  sync.Once
	wg        sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

func newAsyncEventBus(bus evbus.Bus, workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 2
	}
	return &AsyncEventBus{
		bus:       bus,
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 256),
	}
}

func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop closes the queue and waits for workers to drain it.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		close(aeb.workChan)
		aeb.mu.Unlock()
	})
	aeb.wg.Wait()
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for event := range aeb.workChan {
		func() {
			// A panicking subscriber must not take the worker down.
			defer func() { _ = recover() }()
			aeb.bus.Publish(event.topic, event.args...)
		}()
	}
}

// PublishAsync reports whether the event was queued.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()
	if aeb.stopped {
		return false
	}

	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		return false
	}
}
