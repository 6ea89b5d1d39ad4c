// Package notify posts records to an external channel and takes them down
// again.
//
// The record store is the source of truth; a sink is best-effort. Callers
// log sink errors and carry on, they never fail a request because of one.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/precinct/internal/model"
)

// Sink is the external side of a record.
//
// Post returns a durable reference to the posted message, or "" if the sink
// did not produce one. Retract must treat a reference that no longer
// resolves as success, so retracting twice is safe.
type Sink interface {
	Post(ctx context.Context, n Notice) (ref string, err error)
	Retract(ctx context.Context, kind model.Kind, ref string) error
}

// Notice is what gets posted. Exactly one of Citation and Arrest is set,
// matching Kind.
type Notice struct {
	Kind     model.Kind
	Citation *model.Citation
	Arrest   *model.Arrest
}

func CitationNotice(c *model.Citation) Notice {
	return Notice{Kind: model.KindCitation, Citation: c}
}

func ArrestNotice(a *model.Arrest) Notice {
	return Notice{Kind: model.KindArrest, Arrest: a}
}

// ErrNoChannel is returned when no channel is configured for a record kind.
var ErrNoChannel = errors.New("notify: no channel configured for record kind")

// =========================================================================
// NOP
// =========================================================================

// Nop is the sink used when notifications are disabled.
type Nop struct{}

var _ Sink = Nop{}

func (Nop) Post(context.Context, Notice) (string, error) { return "", nil }

func (Nop) Retract(context.Context, model.Kind, string) error { return nil }

// =========================================================================
// TIMEOUT
// =========================================================================

type timeoutSink struct {
	next Sink
	d    time.Duration
}

// WithTimeout bounds every call on s to d. A call still running when d
// elapses is abandoned and reported as context.DeadlineExceeded, even if s
// itself ignores its context.
func WithTimeout(s Sink, d time.Duration) Sink {
	return &timeoutSink{next: s, d: d}
}

func (t *timeoutSink) Post(ctx context.Context, n Notice) (string, error) {
	type result struct {
		ref string
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		ref, err := t.next.Post(ctx, n)
		done <- result{ref, err}
	}()

	select {
	case r := <-done:
		return r.ref, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *timeoutSink) Retract(ctx context.Context, kind model.Kind, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.next.Retract(ctx, kind, ref) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
