package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/queue"
)

// EventPublisher receives session lifecycle events after the
// transaction that produced them has committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SessionEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.SessionEvent) error { return nil }

// TableObserver is told after commit that the occupancy of a table
// changed, e.g. to evict a cached table status.
type TableObserver interface {
	TableChanged(ctx context.Context, tableID uint64)
}

// Option configures a coordinator.
type Option func(*deps)

type deps struct {
	events   EventPublisher
	observer TableObserver
	log      logrus.FieldLogger
	now      func() time.Time
}

// WithPublisher sets where lifecycle events are sent.  Without it events
// are dropped.
func WithPublisher(p EventPublisher) Option {
	return func(d *deps) {
		if p != nil {
			d.events = p
		}
	}
}

// WithTableObserver registers o for occupancy changes.
func WithTableObserver(o TableObserver) Option {
	return func(d *deps) { d.observer = o }
}

// WithLogger sets the logger; the logrus standard logger is the default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *deps) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

func newDeps(opts []Option) deps {
	d := deps{
		events: nopPublisher{},
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// publish sends ev and logs a failure.  The operation that produced the
// event has already committed, so a broker outage never fails it.
func (d deps) publish(ctx context.Context, ev queue.SessionEvent) {
	if ev.OccurredAt == "" {
		ev.OccurredAt = d.now().UTC().Format(time.RFC3339)
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"event":      ev.Type,
			"session_id": ev.SessionID,
		}).Warn("publish session event failed")
	}
}

func (d deps) tableChanged(ctx context.Context, tableID uint64) {
	if d.observer != nil {
		d.observer.TableChanged(ctx, tableID)
	}
}

// logFailure logs a failed operation.  Guard failures are expected
// outcomes and logged at info; internal errors at error with the cause.
func (d deps) logFailure(entry *logrus.Entry, op string, err error) {
	if KindOf(err) == KindInternal {
		entry.WithError(err).Errorf("%s failed", op)
		return
	}
	entry.WithField("reason", MessageOf(err)).Infof("%s rejected", op)
}
