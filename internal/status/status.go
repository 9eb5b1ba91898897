// Package status multiplexes independently paced pollers onto one event
// stream per observer, pushing a topic only when its value changes.
package status

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const EventConnected = "connected"

// Sink receives named events for one observer.
type Sink interface {
	Send(event string, data any) error
}

// Topic is one polled value. Once topics are pushed a single time per
// connection.
type Topic struct {
	Name     string
	Interval time.Duration
	Once     bool
	Poll     func(ctx context.Context) (any, error)
}

// NewTopic adapts a typed poll function.
func NewTopic[T any](name string, interval time.Duration, poll func(ctx context.Context) (T, error)) Topic {
	return Topic{
		Name:     name,
		Interval: interval,
		Poll: func(ctx context.Context) (any, error) {
			return poll(ctx)
		},
	}
}

type Connected struct {
	ConnectionID string   `json:"connection_id"`
	Topics       []string `json:"topics"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type Multiplexer struct {
	topics []Topic
}

func New(topics ...Topic) *Multiplexer {
	return &Multiplexer{topics: topics}
}

// lockedSink serializes writes from concurrent pollers.
type lockedSink struct {
	mu   sync.Mutex
	sink Sink
}

func (l *lockedSink) Send(event string, data any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Send(event, data)
}

// Serve streams to sink until ctx is cancelled or a write fails. Either way
// all pollers of this connection stop. Cancellation is not an error.
func (m *Multiplexer) Serve(ctx context.Context, sink Sink) error {
	out := &lockedSink{sink: sink}
	id := uuid.NewString()

	names := make([]string, 0, len(m.topics))
	for _, t := range m.topics {
		names = append(names, t.Name)
	}
	if err := out.Send(EventConnected, Connected{ConnectionID: id, Topics: names}); err != nil {
		return err
	}
	slog.Debug("Status stream connected", "connection", id)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range m.topics {
		g.Go(func() error {
			return poll(gctx, t, out)
		})
	}

	err := g.Wait()
	if err == nil {
		// Only one-shot topics: hold the stream open until the observer leaves.
		<-ctx.Done()
	}
	slog.Debug("Status stream closed", "connection", id, "error", err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// poller holds the per-connection cache of one topic.
type poller struct {
	topic   Topic
	sink    Sink
	prev    any
	hasPrev bool
	lastErr string
}

func (p *poller) tick(ctx context.Context) error {
	v, err := p.topic.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Forget the last value so recovery is pushed again.
		p.prev, p.hasPrev = nil, false
		if err.Error() == p.lastErr {
			return nil
		}
		p.lastErr = err.Error()
		return p.sink.Send(p.topic.Name+"_error", ErrorPayload{Error: p.lastErr})
	}

	p.lastErr = ""
	if p.hasPrev && reflect.DeepEqual(p.prev, v) {
		return nil
	}
	p.prev, p.hasPrev = v, true
	return p.sink.Send(p.topic.Name, v)
}

func poll(ctx context.Context, t Topic, sink Sink) error {
	p := &poller{topic: t, sink: sink}
	if err := p.tick(ctx); err != nil {
		return err
	}
	if t.Once {
		return nil
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				return err
			}
		}
	}
}
