// Package navigation keeps the current path and query in sync with a history
// provider and fans changes out to subscribers.
package navigation

import (
	"log"
	"sync"
)

// Mode selects between adding a history entry and overwriting the current one.
type Mode string

const (
	ModePush    Mode = "push"
	ModeReplace Mode = "replace"
)

// Listener receives the state after every change.
type Listener func(State)

// Store is the single source of truth for "where am I". It is created once at
// startup and lives for the whole session.
type Store struct {
	loc    Location
	logger *log.Logger

	mu        sync.RWMutex
	state     State
	nextID    int
	listeners []subscription

	detach func()
}

type subscription struct {
	id int
	fn Listener
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes warnings to logger instead of log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New reads the current address from loc and starts following popstate.
func New(loc Location, opts ...Option) *Store {
	s := &Store{
		loc:    loc,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = ParseTarget(loc.Href())
	s.detach = loc.OnPopState(s.handlePopState)
	return s
}

func (s *Store) CurrentPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Path
}

func (s *Store) CurrentQuery() Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Query.Clone()
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Path: s.state.Path, Query: s.state.Query.Clone()}
}

// Route is the page-selection identifier of the current path.
func (s *Store) Route() string {
	return s.State().Route()
}

// Navigate moves to target. History failures are logged and the tracked
// state still advances so the UI follows the user's intent.
func (s *Store) Navigate(target string, mode Mode) {
	next := ParseTarget(target)
	href := next.Href()

	var err error
	switch mode {
	case ModeReplace:
		err = s.loc.ReplaceState(href)
	default:
		mode = ModePush
		err = s.loc.PushState(href)
	}
	if err != nil {
		s.logger.Printf("navigation: %s %q failed, keeping in-memory state: %v", mode, href, err)
	}

	s.set(next)

	if mode == ModePush {
		s.loc.ScrollToTop()
	}
}

// GoBack asks the history to go back one entry. The state changes when the
// provider reports the popstate.
func (s *Store) GoBack() {
	if err := s.loc.Back(); err != nil {
		s.logger.Printf("navigation: back failed: %v", err)
	}
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Close stops following the history provider.
func (s *Store) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

func (s *Store) handlePopState() {
	s.set(ParseTarget(s.loc.Href()))
}

// set swaps the state and notifies listeners outside the lock, in
// subscription order, before returning.
func (s *Store) set(next State) {
	s.mu.Lock()
	s.state = next
	listeners := make([]subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(State{Path: next.Path, Query: next.Query.Clone()})
	}
}
