package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	reperr "github.com/expertsure/expertsure/internal/errors"
)

// Broadcaster delivers events to whoever is watching a project.
type Broadcaster interface {
	// Publish delivers one event on the project's channel.
	Publish(ctx context.Context, ev Event) error
	// Close releases the underlying transport.
	Close() error
}

// SubjectPrefix is the NATS subject root; each project gets its own
// subject beneath it.
const SubjectPrefix = "expertsure.projects"

// Subject returns the NATS subject carrying a project's events.
func Subject(projectID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, projectID)
}

// NATSBroadcaster publishes events over a NATS connection.
type NATSBroadcaster struct {
	nc *nats.Conn
}

// NewNATSBroadcaster connects to the given NATS URL.
func NewNATSBroadcaster(url string) (*NATSBroadcaster, error) {
	nc, err := nats.Connect(url,
		nats.Name("expertsure"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	return &NATSBroadcaster{nc: nc}, nil
}

// Publish implements Broadcaster.
func (b *NATSBroadcaster) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return reperr.New(reperr.ErrCategoryChannel, reperr.CodePublishFailed,
			fmt.Sprintf("marshal event: %v", err))
	}
	if err := b.nc.Publish(Subject(ev.ProjectID), data); err != nil {
		return reperr.Wrap(reperr.ErrCategoryChannel, reperr.CodePublishFailed,
			"publish event", err)
	}
	return nil
}

// Close drains and closes the connection.
func (b *NATSBroadcaster) Close() error {
	if b.nc == nil || b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}

// MemoryBroadcaster is an in-process broadcaster for single-node runs
// and tests. Subscribers receive events on a buffered channel; slow
// subscribers drop events rather than blocking publication.
type MemoryBroadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Event
	next int
}

// NewMemoryBroadcaster creates an in-process broadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: make(map[string]map[int]chan Event)}
}

// Publish implements Broadcaster.
func (b *MemoryBroadcaster) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.ProjectID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than stall the session.
		}
	}
	return nil
}

// Subscribe attaches a watcher to a project's events. The returned
// cancel function detaches and closes the channel.
func (b *MemoryBroadcaster) Subscribe(projectID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[projectID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[projectID][id]; ok {
			delete(b.subs[projectID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close implements Broadcaster.
func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	return nil
}

// FanOut publishes every event to each wrapped broadcaster. Local SSE
// subscribers and an external NATS transport can both see the stream.
type FanOut struct {
	targets []Broadcaster
}

// NewFanOut creates a fan-out over the given broadcasters.
func NewFanOut(targets ...Broadcaster) *FanOut {
	return &FanOut{targets: targets}
}

// Publish implements Broadcaster. All targets are attempted; the first
// error is returned.
func (f *FanOut) Publish(ctx context.Context, ev Event) error {
	var firstErr error
	for _, t := range f.targets {
		if err := t.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements Broadcaster.
func (f *FanOut) Close() error {
	var firstErr error
	for _, t := range f.targets {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
