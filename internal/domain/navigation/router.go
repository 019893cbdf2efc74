package navigation

import "sync"

// Router is the host's screen stack. Replace swaps the top entry and
// notifies listeners after the lock is released.
type Router struct {
	mu        sync.Mutex
	stack     []Location
	listeners []func(Location)
}

func NewRouter(initial string) *Router {
	return &Router{stack: []Location{ParseLocation(initial)}}
}

// OnChange registers fn to run after every location change.
func (r *Router) OnChange(fn func(Location)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Router) Replace(route string) {
	loc := ParseLocation(route)
	r.mu.Lock()
	r.stack[len(r.stack)-1] = loc
	r.mu.Unlock()
	r.notify(loc)
}

// Push opens route on top of the current screen.
func (r *Router) Push(route string) {
	loc := ParseLocation(route)
	r.mu.Lock()
	r.stack = append(r.stack, loc)
	r.mu.Unlock()
	r.notify(loc)
}

// Back pops one screen. It reports false at the root.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.stack) < 2 {
		r.mu.Unlock()
		return false
	}
	r.stack = r.stack[:len(r.stack)-1]
	loc := r.stack[len(r.stack)-1]
	r.mu.Unlock()
	r.notify(loc)
	return true
}

func (r *Router) Location() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(Location(nil), r.stack[len(r.stack)-1]...)
}

func (r *Router) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

func (r *Router) notify(loc Location) {
	r.mu.Lock()
	listeners := append([]func(Location){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(append(Location(nil), loc...))
	}
}
