// Package eventbus implements the in-process publish-subscribe bus
// described in spec.md §4.7: synchronous, in-order per publisher, with a
// bounded ring buffer retaining recent history for debugging. Adapted
// from the teacher's internal/transparency.GlassBoxEventBus, trimmed of
// its UI batching (this bus has no terminal to avoid flooding) and
// generalized from Glass Box's campaign/turn vocabulary to the
// startup/economic/evolution/tool/goal vocabulary of §4.7.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type enumerates the event vocabulary fixed by spec.md §4.7.
type Type string

const (
	TypeStartup              Type = "startup"
	TypeShutdown              Type = "shutdown"
	TypeHealthCheck           Type = "health_check"
	TypeEconomicTransaction   Type = "economic_transaction"
	TypeLowBalance            Type = "low_balance"
	TypeIncomeGenerated       Type = "income_generated"
	TypeEvolutionStarted      Type = "evolution_started"
	TypeEvolutionCompleted    Type = "evolution_completed"
	TypeEvolutionFailed       Type = "evolution_failed"
	TypeToolCreated           Type = "tool_created"
	TypeToolLoaded            Type = "tool_loaded"
	TypeToolError             Type = "tool_error"
	TypeGoalCreated           Type = "goal_created"
	TypeGoalCompleted         Type = "goal_completed"
	TypeGoalFailed            Type = "goal_failed"
	TypeReflectionStarted     Type = "reflection_started"
	TypeReflectionCompleted   Type = "reflection_completed"
	TypeDiagnosisCompleted    Type = "diagnosis_completed"
	TypeActionRequired        Type = "action_required"
)

// Event is the envelope every publication carries.
type Event struct {
	Type          Type
	Data          map[string]any
	Source        string
	Timestamp     time.Time
	CorrelationID string
}

// Subscriber receives events. Implementations must not block for long —
// the bus calls subscribers synchronously on the publishing goroutine.
type Subscriber func(Event)

// Bus is a synchronous, in-process pub/sub bus with a bounded history
// ring buffer. All methods are safe for concurrent use.
type Bus struct {
	mu          sync.Mutex
	subscribers []namedSubscriber
	history     []Event
	historyCap  int
	historyPos  int
	historyLen  int
	log         *zap.SugaredLogger
}

type namedSubscriber struct {
	id  string
	sub Subscriber
}

// DefaultHistoryCap matches spec.md §4.7's default ring-buffer size.
const DefaultHistoryCap = 1000

// New creates a Bus with the given history capacity (0 means
// DefaultHistoryCap).
func New(log *zap.SugaredLogger, historyCap int) *Bus {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Bus{
		history:    make([]Event, historyCap),
		historyCap: historyCap,
		log:        log,
	}
}

// Subscribe registers a subscriber and returns an unsubscribe token.
func (b *Bus) Subscribe(sub Subscriber) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subscribers = append(b.subscribers, namedSubscriber{id: id, sub: sub})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a previously registered subscriber by its token.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish dispatches an event to every current subscriber, in registration
// order, on the calling goroutine. A panicking or erroring subscriber is
// isolated: it is recovered and logged, and delivery continues to the
// remaining subscribers. The event is appended to the history ring before
// dispatch begins.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.CorrelationID == "" {
		evt.CorrelationID = uuid.NewString()
	}

	b.mu.Lock()
	subs := make([]namedSubscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.history[b.historyPos] = evt
	b.historyPos = (b.historyPos + 1) % b.historyCap
	if b.historyLen < b.historyCap {
		b.historyLen++
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatchSafely(s, evt)
	}
}

func (b *Bus) dispatchSafely(s namedSubscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.log != nil {
				b.log.Errorw("subscriber panicked", "subscriber", s.id, "event_type", evt.Type, "recover", r)
			}
		}
	}()
	s.sub(evt)
}

// History returns up to limit of the most recently published events,
// oldest first. limit <= 0 returns the full retained history.
func (b *Bus) History(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.historyLen
	out := make([]Event, 0, n)
	start := (b.historyPos - n + b.historyCap) % b.historyCap
	for i := 0; i < n; i++ {
		out = append(out, b.history[(start+i)%b.historyCap])
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
