package service

import (
	"context"
	"time"
)

// Settler waits for a committed modal close to take effect before the
// modal is opened again. OpenSimilar uses it between its two steps.
type Settler interface {
	Settle(ctx context.Context) error
}

// SettlerFunc adapts a plain function to Settler.
type SettlerFunc func(ctx context.Context) error

func (f SettlerFunc) Settle(ctx context.Context) error { return f(ctx) }

// Immediate returns a Settler that does not wait. With server-rendered
// pages the close is committed to the session store before Settle is called,
// so nothing is left to wait for.
func Immediate() Settler {
	return SettlerFunc(func(context.Context) error { return nil })
}

// After returns a Settler that pauses for d, or until ctx is done.
func After(d time.Duration) Settler {
	if d <= 0 {
		return Immediate()
	}
	return SettlerFunc(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
