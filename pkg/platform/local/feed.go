package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"chatterly/pkg/logger"
	"chatterly/pkg/platform"
)

// feed is the change-feed transport behind the embedded platform: one
// subject per channel, publish on insert, subscribe per open channel.
type feed interface {
	publish(subject string, ev platform.InsertEvent)
	subscribe(ctx context.Context, subject string, onEvent func(platform.InsertEvent)) (platform.Subscription, error)
	close()
}

// natsFeed carries events over a NATS connection.
type natsFeed struct {
	nc *nats.Conn
}

func dialNATS(url string) (*natsFeed, error) {
	nc, err := nats.Connect(url, nats.Name("chatterly"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("nats_connected", "url", url)
	return &natsFeed{nc: nc}, nil
}

func (f *natsFeed) publish(subject string, ev platform.InsertEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Error("feed_marshal_failed", "subject", subject, "error", err)
		return
	}
	if err := f.nc.Publish(subject, b); err != nil {
		// best-effort: the row is persisted, only the notification is lost
		logger.Error("feed_publish_failed", "subject", subject, "error", err)
	}
}

func (f *natsFeed) subscribe(ctx context.Context, subject string, onEvent func(platform.InsertEvent)) (platform.Subscription, error) {
	sub, err := f.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev platform.InsertEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			logger.Error("feed_unmarshal_failed", "subject", subject, "error", err)
			return
		}
		select {
		case <-ctx.Done():
		default:
			onEvent(ev)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return natsSubscription{sub: sub}, nil
}

func (f *natsFeed) close() {
	f.nc.Close()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Close() error {
	return s.sub.Unsubscribe()
}

// bus is the in-process fallback used when no NATS URL is configured
// (single-binary deployments and tests).
type bus struct {
	mu     sync.Mutex
	subs   map[string]map[int]func(platform.InsertEvent)
	nextID int
	closed bool
}

func newBus() *bus {
	return &bus{subs: map[string]map[int]func(platform.InsertEvent){}}
}

func (b *bus) publish(subject string, ev platform.InsertEvent) {
	b.mu.Lock()
	var handlers []func(platform.InsertEvent)
	for _, fn := range b.subs[subject] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	// deliver outside the lock, asynchronously like a real transport
	for _, fn := range handlers {
		go fn(ev)
	}
}

func (b *bus) subscribe(ctx context.Context, subject string, onEvent func(platform.InsertEvent)) (platform.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: feed closed", subject)
	}
	id := b.nextID
	b.nextID++
	if b.subs[subject] == nil {
		b.subs[subject] = map[int]func(platform.InsertEvent){}
	}
	b.subs[subject][id] = func(ev platform.InsertEvent) {
		select {
		case <-ctx.Done():
		default:
			onEvent(ev)
		}
	}
	return busSubscription{b: b, subject: subject, id: id}, nil
}

func (b *bus) close() {
	b.mu.Lock()
	b.closed = true
	b.subs = map[string]map[int]func(platform.InsertEvent){}
	b.mu.Unlock()
}

type busSubscription struct {
	b       *bus
	subject string
	id      int
}

func (s busSubscription) Close() error {
	s.b.mu.Lock()
	if m, ok := s.b.subs[s.subject]; ok {
		delete(m, s.id)
	}
	s.b.mu.Unlock()
	return nil
}
