package notify

import (
	"context"
	"errors"

	"deposit-service/internal/domain"
)

type Notifier interface {
	NotifyUser(ctx context.Context, n domain.Notification) error
	NotifyOps(ctx context.Context, n domain.Notification) error
}

// Fanout delivers to every notifier and reports all failures together
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) NotifyUser(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, nt := range f.notifiers {
		if err := nt.NotifyUser(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) NotifyOps(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, nt := range f.notifiers {
		if err := nt.NotifyOps(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
