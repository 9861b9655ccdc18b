package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when subscribing to a store that has been closed.
var ErrClosed = errors.New("store closed")

// QueryFunc reads the current documents of a collection that match filter.
type QueryFunc func(ctx context.Context, collection string, filter *Filter) ([]Document, error)

// Hub fans committed changes out to live streams. Store implementations call
// Publish after every committed write; the hub re-runs each affected stream's
// query and hands it the fresh snapshot.
type Hub struct {
	query QueryFunc

	mu      sync.Mutex
	streams map[*hubStream]struct{}
	closed  bool
}

// NewHub creates a hub that builds snapshots with query.
func NewHub(query QueryFunc) *Hub {
	return &Hub{
		query:   query,
		streams: make(map[*hubStream]struct{}),
	}
}

// Subscribe registers a stream and delivers its first snapshot before returning.
func (h *Hub) Subscribe(ctx context.Context, collection string, filter *Filter) (Stream, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection path: %q", collection)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s := &hubStream{
		hub:        h,
		collection: collection,
		filter:     filter,
		ch:         make(chan Snapshot, 1),
	}

	// Hold the stream lock until the first snapshot is queued so a concurrent
	// Publish cannot deliver ahead of it.
	s.mu.Lock()
	defer s.mu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.streams[s] = struct{}{}
	h.mu.Unlock()

	docs, err := h.query(ctx, collection, filter)
	if err != nil {
		h.remove(s)
		s.closed = true
		close(s.ch)
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	s.deliverLocked(Snapshot{Collection: collection, Docs: docs, ReadTime: time.Now()})

	return s, nil
}

// Publish refreshes every stream subscribed to one of the given collections.
// It runs detached from ctx cancellation: the write has already committed and
// its subscribers must still hear about it.
func (h *Hub) Publish(ctx context.Context, collections ...string) {
	ctx = context.WithoutCancel(ctx)

	h.mu.Lock()
	var targets []*hubStream
	for s := range h.streams {
		for _, c := range collections {
			if s.collection == c {
				targets = append(targets, s)
				break
			}
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.refresh(ctx)
	}
}

// Close ends every live stream and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	streams := make([]*hubStream, 0, len(h.streams))
	for s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

func (h *Hub) remove(s *hubStream) {
	h.mu.Lock()
	delete(h.streams, s)
	h.mu.Unlock()
}

type hubStream struct {
	hub        *Hub
	collection string
	filter     *Filter

	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	once   sync.Once
}

func (s *hubStream) Snapshots() <-chan Snapshot {
	return s.ch
}

func (s *hubStream) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
	})
	return nil
}

func (s *hubStream) refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	docs, err := s.hub.query(ctx, s.collection, s.filter)
	if err != nil {
		slog.Warn("Snapshot refresh failed", "collection", s.collection, "error", err)
		return
	}
	s.deliverLocked(Snapshot{Collection: s.collection, Docs: docs, ReadTime: time.Now()})
}

// deliverLocked replaces any undelivered snapshot with snap. Only holders of
// s.mu send on s.ch, so the send after draining cannot block.
func (s *hubStream) deliverLocked(snap Snapshot) {
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}
