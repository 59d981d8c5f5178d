package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoChannel is returned when a reply has no transport to go to.
var ErrNoChannel = errors.New("no channel for user")

// Router is implemented by notifiers that send each user's replies back over
// the channel the user last wrote from.
type Router interface {
	Route(userID int64, channel string)
}

// Switchboard is a Notifier that fans replies out to the transport each user
// last used.
type Switchboard struct {
	mu       sync.RWMutex
	channels map[string]Notifier
	routes   map[int64]string
	fallback string
}

// NewSwitchboard creates a switchboard. Users never seen on any channel are
// sent to fallback.
func NewSwitchboard(fallback string) *Switchboard {
	return &Switchboard{
		channels: make(map[string]Notifier),
		routes:   make(map[int64]string),
		fallback: fallback,
	}
}

// Register attaches a transport under name.
func (s *Switchboard) Register(name string, n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = n
}

// Route records the channel userID last wrote from.
func (s *Switchboard) Route(userID int64, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[userID] = channel
}

// Notify implements Notifier.
func (s *Switchboard) Notify(ctx context.Context, userID int64, r Reply) error {
	s.mu.RLock()
	name, ok := s.routes[userID]
	if !ok {
		name = s.fallback
	}
	n := s.channels[name]
	s.mu.RUnlock()

	if n == nil {
		return fmt.Errorf("%w: %d via %q", ErrNoChannel, userID, name)
	}
	return n.Notify(ctx, userID, r)
}
