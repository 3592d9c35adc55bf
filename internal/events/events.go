// Package events publishes ledger movements for downstream consumers
// (notifications to guardians, accounting exports).
package events

import (
	"context"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentRegistered     = "payment.registered"
	ConsumptionRegistered = "consumption.registered"
	RollCallPosted        = "rollcall.posted"
	PriceChanged          = "price.changed"
)

type Event struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	StudentID  *uuid.UUID      `json:"student_id,omitempty"`
	EntityID   string          `json:"entity_id"`
	Amount     decimal.Decimal `json:"amount"`
	Data       any             `json:"data,omitempty"`
}

// Key partitions by student so one student's movements stay ordered.
func (e Event) Key() []byte {
	if e.StudentID != nil {
		return []byte(e.StudentID.String())
	}
	return []byte(e.EntityID)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher only writes events to the process log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	data, err := sonic.Marshal(e)
	if err != nil {
		return err
	}
	log.Printf("[EVENT] %s %s", e.Type, data)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Emit publishes and logs failures; a lost event never fails the request.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("[WARN] event %s not published: %v", e.Type, err)
	}
}

// Recorder keeps published events in memory; used by tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
