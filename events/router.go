package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sistema-id/smarttoken-provisioning/metrics"
)

// ErrKindSubscribed is returned when a kind already has an active subscriber.
var ErrKindSubscribed = errors.New("event kind already has an active subscriber")

// Handler consumes one event. Handlers run inline on the publisher's
// goroutine, so dispatch is ordered per subscriber; handlers doing slow work
// must hand it off themselves.
type Handler func(Event)

var knownKinds = map[Kind]struct{}{
	ProfileLoaded: {},
	EngineReady:   {},
	ScanComplete:  {},
	SetupComplete: {},
	PushMessage:   {},
}

// Router delivers each published event to the single subscriber registered
// for its kind. Subscriptions are explicitly scoped: a consumer subscribes
// when it becomes active and closes the subscription when it goes away, which
// rules out the duplicate-dispatch leak of a register-and-forget receiver.
type Router struct {
	mu   sync.Mutex
	subs map[Kind]*Subscription
	log  *slog.Logger
}

// NewRouter creates an event router.
func NewRouter(log *slog.Logger) *Router {
	return &Router{
		subs: make(map[Kind]*Subscription),
		log:  log,
	}
}

// Subscribe registers fn as the sole handler for kind. It fails if the kind
// is unknown or already subscribed; the previous subscription must be closed
// first.
func (r *Router) Subscribe(kind Kind, fn Handler) (*Subscription, error) {
	if _, ok := knownKinds[kind]; !ok {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[kind]; ok {
		return nil, fmt.Errorf("%w: %s", ErrKindSubscribed, kind)
	}

	sub := &Subscription{router: r, kind: kind, fn: fn}
	r.subs[kind] = sub
	return sub, nil
}

// Publish routes the event to the subscriber for its kind. Events of unknown
// kinds, and events with no active subscriber, are dropped.
func (r *Router) Publish(ev Event) {
	if _, ok := knownKinds[ev.Kind]; !ok {
		r.log.Debug("Ignoring event of unknown kind", "kind", string(ev.Kind))
		return
	}
	metrics.IncBroadcast(string(ev.Kind))

	r.mu.Lock()
	sub := r.subs[ev.Kind]
	r.mu.Unlock()

	if sub == nil {
		r.log.Debug("No subscriber for event", "kind", string(ev.Kind))
		return
	}
	sub.fn(ev)
}

// Subscription is one consumer's registration for a single event kind.
type Subscription struct {
	router *Router
	kind   Kind
	fn     Handler
	once   sync.Once
}

// Close removes the subscription. Further events of the kind are dropped
// until someone subscribes again. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.router.mu.Lock()
		defer s.router.mu.Unlock()
		if s.router.subs[s.kind] == s {
			delete(s.router.subs, s.kind)
		}
	})
}
