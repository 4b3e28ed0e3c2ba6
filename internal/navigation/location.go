package navigation

import (
	"errors"
	"sync"
)

// Location abstracts the address bar and history of the host environment.
type Location interface {
	// Href returns the current path and query, e.g. "/builder?template=x".
	Href() string
	PushState(href string) error
	ReplaceState(href string) error
	// Back asks the history to move one entry back. A successful move is
	// reported later through the popstate listeners.
	Back() error
	ScrollToTop()
	OnPopState(fn func()) (cancel func())
}

// ErrHistoryRestricted is returned by a restricted MemoryLocation for every
// history write, mirroring a sandboxed frame rejecting pushState.
var ErrHistoryRestricted = errors.New("history: operation not permitted")

// MemoryLocation is an in-process history stack. It backs the terminal client
// and stands in for a browser in tests.
type MemoryLocation struct {
	mu         sync.Mutex
	entries    []string
	cursor     int
	restricted bool
	scrolls    int
	nextID     int
	listeners  []popListener
}

type popListener struct {
	id int
	fn func()
}

// NewMemoryLocation starts a history with a single entry.
func NewMemoryLocation(initial string) *MemoryLocation {
	if initial == "" {
		initial = "/"
	}
	return &MemoryLocation{entries: []string{initial}}
}

// SetRestricted makes every history call fail with ErrHistoryRestricted.
func (l *MemoryLocation) SetRestricted(restricted bool) {
	l.mu.Lock()
	l.restricted = restricted
	l.mu.Unlock()
}

func (l *MemoryLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[l.cursor]
}

func (l *MemoryLocation) PushState(href string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restricted {
		return ErrHistoryRestricted
	}
	l.entries = append(l.entries[:l.cursor+1], href)
	l.cursor++
	return nil
}

func (l *MemoryLocation) ReplaceState(href string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restricted {
		return ErrHistoryRestricted
	}
	l.entries[l.cursor] = href
	return nil
}

// Back moves the cursor one entry back and dispatches popstate. At the first
// entry it is a no-op, as in a browser.
func (l *MemoryLocation) Back() error {
	return l.move(-1)
}

// Forward moves the cursor one entry forward and dispatches popstate.
func (l *MemoryLocation) Forward() error {
	return l.move(1)
}

func (l *MemoryLocation) move(delta int) error {
	l.mu.Lock()
	if l.restricted {
		l.mu.Unlock()
		return ErrHistoryRestricted
	}
	next := l.cursor + delta
	if next < 0 || next >= len(l.entries) {
		l.mu.Unlock()
		return nil
	}
	l.cursor = next
	listeners := make([]popListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, listener := range listeners {
		listener.fn()
	}
	return nil
}

func (l *MemoryLocation) ScrollToTop() {
	l.mu.Lock()
	l.scrolls++
	l.mu.Unlock()
}

// ScrollResets reports how many times the view was scrolled to the top.
func (l *MemoryLocation) ScrollResets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scrolls
}

// Entries returns a copy of the history stack and the current cursor.
func (l *MemoryLocation) Entries() ([]string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out, l.cursor
}

func (l *MemoryLocation) OnPopState(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.listeners = append(l.listeners, popListener{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, listener := range l.listeners {
			if listener.id == id {
				l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
				return
			}
		}
	}
}
