package feed

import (
	"context"
	"errors"
	"sync"

	"noodlebadge/internal/models"
)

// ErrFeedClosed is returned after Close
var ErrFeedClosed = errors.New("feed is closed")

type channelSubscriber struct {
	userID string
	ch     chan models.CounterUpdate
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func (s *channelSubscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// send blocks until the subscriber takes the update, goes away, or ctx ends
func (s *channelSubscriber) send(ctx context.Context, update models.CounterUpdate) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	select {
	case s.ch <- update:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChannelFeed is an in-process feed. Publish fans out to every live
// subscription of the update's user.
type ChannelFeed struct {
	bufferSize int

	mu     sync.Mutex
	subs   map[string]map[*channelSubscriber]struct{}
	closed bool
}

// NewChannelFeed creates an in-memory feed
func NewChannelFeed(bufferSize int) *ChannelFeed {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &ChannelFeed{
		bufferSize: bufferSize,
		subs:       make(map[string]map[*channelSubscriber]struct{}),
	}
}

// Subscribe implements Feed
func (f *ChannelFeed) Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error) {
	sub := &channelSubscriber{
		userID: userID,
		ch:     make(chan models.CounterUpdate, f.bufferSize),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[*channelSubscriber]struct{})
	}
	f.subs[userID][sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		f.remove(sub)
		sub.stop()
	}()

	return sub.ch, nil
}

func (f *ChannelFeed) remove(sub *channelSubscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set, ok := f.subs[sub.userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(f.subs, sub.userID)
		}
	}
}

// Publish implements Feed
func (f *ChannelFeed) Publish(ctx context.Context, update models.CounterUpdate) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	targets := make([]*channelSubscriber, 0, len(f.subs[update.UserID]))
	for sub := range f.subs[update.UserID] {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		if err := sub.send(ctx, update); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for the user
func (f *ChannelFeed) Subscribers(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[userID])
}

// Close ends every subscription
func (f *ChannelFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var all []*channelSubscriber
	for _, set := range f.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	f.subs = make(map[string]map[*channelSubscriber]struct{})
	f.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}
