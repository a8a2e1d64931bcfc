// Package events publishes audit events for every mutation performed by the quota, ownership, token, contract and
// request components.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cyverse/compute-qms/logging"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "events"})

// Event types.
const (
	QuotaCreated          = "quota.created"
	QuotaUpdated          = "quota.updated"
	QuotaSuspended        = "quota.suspended"
	QuotaUnsuspended      = "quota.unsuspended"
	QuotaDeleted          = "quota.deleted"
	UsageIncremented      = "usage.incremented"
	UsageDecremented      = "usage.decremented"
	UsageReconciled       = "usage.reconciled"
	OwnershipAdded        = "ownership.added"
	OwnershipRemoved      = "ownership.removed"
	TokensChanged         = "tokens.changed"
	PlanChanged           = "plan.changed"
	PlanExpired           = "plan.expired"
	ContractCreated       = "contract.created"
	ContractStatusChanged = "contract.status_changed"
	ContractRefilled      = "contract.refilled"
	ContractExpired       = "contract.expired"
	RequestCreated        = "request.created"
	RequestApproved       = "request.approved"
	RequestDenied         = "request.denied"
	ResourceCreated       = "resource.created"
	ResourceDeleted       = "resource.deleted"
)

// Event describes a single mutation.
type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates an event of the given type for the given user.
func New(eventType, userID string, details map[string]any) Event {
	return Event{
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// WithActor returns a copy of the event attributed to the given actor.
func (e Event) WithActor(actor string) Event {
	e.Actor = actor
	return e
}

// Sink receives audit events. Emitting never fails from the caller's point of view; a sink that can't deliver an
// event logs the failure instead.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// LogSink writes events to the service log.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(_ context.Context, event Event) {
	log.WithFields(logrus.Fields{
		"event":   event.Type,
		"user":    event.UserID,
		"actor":   event.Actor,
		"details": event.Details,
	}).Info("audit event")
}

// Publisher is the part of a NATS connection used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON documents to a NATS subject.
type NATSSink struct {
	conn    Publisher
	subject string
}

// NewNATSSink returns a sink that publishes to the given subject.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// Emit implements Sink.
func (s *NATSSink) Emit(_ context.Context, event Event) {
	if err := s.publish(event); err != nil {
		log.WithFields(logrus.Fields{"context": "publishing event", "event": event.Type}).Error(err)
	}
}

func (s *NATSSink) publish(event Event) error {
	wrapMsg := "unable to publish the audit event"

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return errors.Wrap(s.conn.Publish(s.subject, data), wrapMsg)
}

// Multi fans events out to several sinks.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// OrDefault returns sink, or a LogSink if sink is nil.
func OrDefault(sink Sink) Sink {
	if sink == nil {
		return LogSink{}
	}
	return sink
}

// Recorder keeps every event in memory. It's useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of each recorded event in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	result := make([]string, len(events))
	for i, e := range events {
		result[i] = e.Type
	}
	return result
}
