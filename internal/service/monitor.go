package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// MonitorResult is what a monitoring operation produced. Monitoring never
// fails its caller: storage problems are logged and reported in Err only.
type MonitorResult struct {
	Events []*model.SecurityEvent
	Err    error
}

func (r *MonitorResult) add(ev *model.SecurityEvent) {
	if ev != nil {
		r.Events = append(r.Events, ev)
	}
}

func (r *MonitorResult) fail(err error) {
	if err != nil {
		r.Err = errors.Join(r.Err, err)
	}
}

func (r *MonitorResult) merge(other MonitorResult) {
	r.Events = append(r.Events, other.Events...)
	r.fail(other.Err)
}

// Dispatcher runs monitoring work off the request path. Work gets a context
// detached from the caller's cancellation and bounded by the write timeout.
// A nil *Dispatcher runs work inline.
type Dispatcher struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher bounding each task by timeout
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{timeout: timeout}
}

// Go runs f in the background
func (d *Dispatcher) Go(ctx context.Context, f func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	if d == nil {
		f(ctx)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := d.bound(ctx)
		defer cancel()
		f(runCtx)
	}()
}

// Wait blocks until all dispatched work finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// windowLabel renders a failure window for metadata, e.g. "1hour" or "30min"
func windowLabel(d time.Duration) string {
	if d == time.Hour {
		return model.Timeframe
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dhours", int(d/time.Hour))
	}
	return fmt.Sprintf("%dmin", int(d/time.Minute))
}

// windowText renders a failure window for descriptions, e.g. "1 hour"
func windowText(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

func generateID(prefix string) string {
	id := uuid.New().String()
	// Remove hyphens and take first 26 chars to fit varchar(32) with prefix
	clean := strings.ReplaceAll(id, "-", "")
	if len(prefix) > 0 {
		return prefix + "_" + clean[:min(26, len(clean))]
	}
	return clean
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
