package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"room-web/internal/observability"
)

var ErrBrokerClosed = errors.New("session broker closed")

// subscriber has a one-slot mailbox: a newer event replaces an
// undelivered older one.
type subscriber struct {
	key     string
	fn      func(Event)
	mailbox chan Event
	quit    chan struct{}
	once    sync.Once
}

func newSubscriber(key string, fn func(Event)) *subscriber {
	return &subscriber{
		key:     key,
		fn:      fn,
		mailbox: make(chan Event, 1),
		quit:    make(chan struct{}),
	}
}

// offer is only called from the broker loop, so it is the mailbox's sole
// producer.
func (s *subscriber) offer(e Event) {
	for {
		select {
		case s.mailbox <- e:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscriber) deliver() {
	for {
		select {
		case <-s.quit:
			return
		case e := <-s.mailbox:
			select {
			case <-s.quit:
				return
			default:
				s.fn(e)
			}
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
}

// Broker routes auth events to the subscribers of each session key. The
// registry is owned by the Run goroutine.
type Broker struct {
	subscribers map[string]map[*subscriber]struct{}

	publish    chan Event
	register   chan *subscriber
	unregister chan *subscriber

	done chan struct{}
}

// NewBroker creates a broker. Call Run before subscribing.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]map[*subscriber]struct{}),
		publish:     make(chan Event, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
	}
}

// Run is the broker loop. It returns when ctx is canceled.
func (b *Broker) Run(ctx context.Context) error {
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session broker shutting down")
			return ctx.Err()

		case sub := <-b.register:
			if b.subscribers[sub.key] == nil {
				b.subscribers[sub.key] = make(map[*subscriber]struct{})
			}
			b.subscribers[sub.key][sub] = struct{}{}
			observability.SessionSubscribersActive.Inc()
			go sub.deliver()

		case sub := <-b.unregister:
			b.remove(sub)

		case e := <-b.publish:
			for sub := range b.subscribers[e.Key] {
				sub.offer(e)
			}
		}
	}
}

func (b *Broker) remove(sub *subscriber) {
	subs, ok := b.subscribers[sub.key]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	sub.stop()
	observability.SessionSubscribersActive.Dec()

	if len(subs) == 0 {
		delete(b.subscribers, sub.key)
	}
}

func (b *Broker) shutdown() {
	close(b.done)

	for _, subs := range b.subscribers {
		for sub := range subs {
			sub.stop()
			observability.SessionSubscribersActive.Dec()
		}
	}
	b.subscribers = nil
}

// Publish queues e for delivery to the subscribers of e.Key.
func (b *Broker) Publish(ctx context.Context, e Event) error {
	select {
	case b.publish <- e:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe calls fn for every event on key until the returned function
// is called. fn runs on a dedicated goroutine, never concurrently with
// itself.
func (b *Broker) Subscribe(key string, fn func(Event)) (unsubscribe func()) {
	sub := newSubscriber(key, fn)

	select {
	case b.register <- sub:
	case <-b.done:
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case b.unregister <- sub:
			case <-b.done:
			}
		})
	}
}
