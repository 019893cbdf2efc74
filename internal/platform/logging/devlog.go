package logging

import (
	"sync"
	"time"
)

// Scope groups dev log entries by subsystem.
type Scope string

const (
	ScopeAPI    Scope = "API"
	ScopeKakao  Scope = "KAKAO"
	ScopeNav    Scope = "NAV"
	ScopeSys    Scope = "SYS"
	ScopeBridge Scope = "BRIDGE"
)

const DefaultDevLogCapacity = 200

// DevEntry is one line of the in-app developer log.
type DevEntry struct {
	ID      uint64         `json:"id"`
	TS      time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Scope   Scope          `json:"scope"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// DevLog is a bounded ring buffer of recent entries. A disabled DevLog
// accepts calls and records nothing.
type DevLog struct {
	mu      sync.RWMutex
	enabled bool
	entries []DevEntry
	head    int
	size    int
	nextID  uint64
	subs    map[int]func(DevEntry)
	nextSub int
	now     func() time.Time
}

func NewDevLog(enabled bool, capacity int) *DevLog {
	if capacity <= 0 {
		capacity = DefaultDevLogCapacity
	}
	return &DevLog{
		enabled: enabled,
		entries: make([]DevEntry, capacity),
		subs:    make(map[int]func(DevEntry)),
		now:     time.Now,
	}
}

func (d *DevLog) Enabled() bool {
	if d == nil {
		return false
	}
	return d.enabled
}

func (d *DevLog) Info(scope Scope, message string, meta map[string]any) {
	d.add("info", scope, message, meta)
}

func (d *DevLog) Warn(scope Scope, message string, meta map[string]any) {
	d.add("warn", scope, message, meta)
}

func (d *DevLog) Error(scope Scope, message string, meta map[string]any) {
	d.add("error", scope, message, meta)
}

func (d *DevLog) add(level string, scope Scope, message string, meta map[string]any) {
	if d == nil || !d.enabled {
		return
	}

	d.mu.Lock()
	d.nextID++
	entry := DevEntry{
		ID:      d.nextID,
		TS:      d.now(),
		Level:   level,
		Scope:   scope,
		Message: message,
		Meta:    meta,
	}
	idx := (d.head + d.size) % len(d.entries)
	if d.size == len(d.entries) {
		d.head = (d.head + 1) % len(d.entries)
	} else {
		d.size++
	}
	d.entries[idx] = entry

	subs := make([]func(DevEntry), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
}

// Entries returns the buffered entries oldest first.
func (d *DevLog) Entries() []DevEntry {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DevEntry, 0, d.size)
	for i := 0; i < d.size; i++ {
		out = append(out, d.entries[(d.head+i)%len(d.entries)])
	}
	return out
}

// Clear drops every buffered entry.
func (d *DevLog) Clear() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.head, d.size = 0, 0
	d.mu.Unlock()
}

// Subscribe registers fn for every new entry and returns its cancel func.
func (d *DevLog) Subscribe(fn func(DevEntry)) func() {
	if d == nil {
		return func() {}
	}
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}
