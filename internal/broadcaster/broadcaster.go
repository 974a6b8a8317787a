// Package broadcaster implements the Event Broadcaster (C14): fan-out of
// execution lifecycle events to SSE subscribers, grounded on the teacher's
// monitoring.ObserverManager — a mutex-guarded slice of listeners notified
// synchronously on every event — re-targeted from named interface callbacks
// to a generic named-event-plus-payload shape addressed by (tenant,
// execution) instead of a single global fan-out list.
package broadcaster

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one lifecycle notification, named per spec §6
// (execution.started, plan.created, step.started, step.completed,
// plan.revised, plan.completed, execution.paused, execution.completed,
// execution.error).
type Event struct {
	Name      string
	Payload   map[string]any
	Timestamp time.Time
}

// subscriberBufferSize bounds how far a slow SSE client can lag before the
// broadcaster starts dropping events to it rather than blocking the driver.
const subscriberBufferSize = 64

type subscriber struct {
	id string
	ch chan Event
}

// Broadcaster fans out Publish calls to every subscriber registered against
// the same (tenantID, executionID) key. The zero value is not usable; use
// New.
type Broadcaster struct {
	reg *registry
}

func New() *Broadcaster {
	return &Broadcaster{reg: newRegistry()}
}

// Publish implements execctx.Broadcaster, delivering eventName/payload to
// every live subscriber for (tenantID, executionID). Delivery is
// best-effort: a subscriber whose buffer is full has the event dropped
// rather than blocking the caller, since Publish is called from inside the
// graph driver's step loop.
func (b *Broadcaster) Publish(tenantID, executionID, eventName string, payload map[string]any) {
	key := subjectKey(tenantID, executionID)
	evt := Event{Name: eventName, Payload: payload, Timestamp: time.Now()}

	for _, sub := range b.reg.subscribers(key) {
		select {
		case sub.ch <- evt:
		default:
			log.Warn().
				Str("tenant_id", tenantID).
				Str("execution_id", executionID).
				Str("subscriber_id", sub.id).
				Str("event", eventName).
				Msg("dropping event for slow SSE subscriber")
		}
	}
}

// Subscribe registers a new listener for (tenantID, executionID) and
// returns its event channel plus an unsubscribe function the caller must
// invoke when the client disconnects, to avoid leaking the channel and
// registry entry.
func (b *Broadcaster) Subscribe(tenantID, executionID string) (<-chan Event, func()) {
	key := subjectKey(tenantID, executionID)
	sub := &subscriber{id: newSubscriberID(), ch: make(chan Event, subscriberBufferSize)}
	b.reg.add(key, sub)
	return sub.ch, func() {
		b.reg.remove(key, sub)
		close(sub.ch)
	}
}

func subjectKey(tenantID, executionID string) string {
	return tenantID + "/" + executionID
}
