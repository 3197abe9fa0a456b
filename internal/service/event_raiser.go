package service

import (
	"context"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// EventRaiser persists security events and fans them out to publishers
type EventRaiser struct {
	events     EventStore
	publishers []EventPublisher
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time
}

// NewEventRaiser creates a new EventRaiser
func NewEventRaiser(
	events EventStore,
	publishers []EventPublisher,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	log *logger.Logger,
) *EventRaiser {
	return &EventRaiser{
		events:     events,
		publishers: publishers,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log.WithComponent("event_raiser"),
		now:        time.Now,
	}
}

// Raise assigns an ID and creation time to ev and stores it. Publishing
// happens in the background and never fails the raise.
func (r *EventRaiser) Raise(ctx context.Context, ev *model.SecurityEvent) (*model.SecurityEvent, error) {
	ev.ID = generateID("sev")
	ev.CreatedAt = r.now()
	ev.Resolved = false
	ev.ResolvedBy = nil
	ev.ResolvedAt = nil

	if err := r.events.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to raise %s event: %w", ev.Type, err)
	}

	r.log.SecurityEvent(ev)
	r.metrics.SecurityEvent(string(ev.Type), string(ev.Severity))

	if len(r.publishers) > 0 {
		r.dispatcher.Go(ctx, func(ctx context.Context) {
			r.publish(ctx, ev)
		})
	}

	return ev, nil
}

func (r *EventRaiser) publish(ctx context.Context, ev *model.SecurityEvent) {
	for _, p := range r.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			r.metrics.MonitorError("publisher_" + p.Name())
			r.log.Error().Err(err).
				Str("publisher", p.Name()).
				Str("event_id", ev.ID).
				Msg("failed to publish security event")
		}
	}
}
