package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type namedNotifier struct {
	name     string
	notifier Notifier
}

// Fanout delivers each notification to every registered driver concurrently.
type Fanout struct {
	drivers []namedNotifier
	limit   int
}

// NewFanout creates an empty fan-out. limit bounds concurrent deliveries; zero means unbounded.
func NewFanout(limit int) *Fanout {
	return &Fanout{limit: limit}
}

// Add registers a driver under a name used in error messages.
func (f *Fanout) Add(name string, notifier Notifier) *Fanout {
	if notifier != nil {
		f.drivers = append(f.drivers, namedNotifier{name: name, notifier: notifier})
	}
	return f
}

// Len returns the number of registered drivers.
func (f *Fanout) Len() int {
	return len(f.drivers)
}

// Notify sends to all drivers. One failing driver does not stop the others; all failures are joined.
func (f *Fanout) Notify(ctx context.Context, notification Notification) error {
	if !notification.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, notification.Kind)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for _, driver := range f.drivers {
		driver := driver
		g.Go(func() error {
			if err := driver.notifier.Notify(ctx, notification); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", driver.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
