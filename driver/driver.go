// Package driver awaits outcomes of the dispatched settlements and passes
// them to the resolution.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nspcc-dev/ntt-ledger/metrics"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"go.uber.org/zap"
)

// Default polling parameters.
const (
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultMaxElapsed      = 15 * time.Minute
)

// ErrTimeout is returned when the outcome is not ready within the configured
// time. The settlement stays awaiting and may be awaited again.
var ErrTimeout = errors.New("settlement outcome awaiting timed out")

var errNotReady = errors.New("outcome is not ready yet")

// Poller checks outcomes of the remote calls.
type Poller interface {
	Poll(ctx context.Context, h settlement.Handle) (settlement.Outcome, error)
}

// Resolver finishes settlements.
type Resolver interface {
	Resolve(ctx context.Context, tok *settlement.Token, o settlement.Outcome) (settlement.Receipt, error)
}

// Prm groups parameters of New.
type Prm struct {
	// Optional, nil disables logging.
	Logger *zap.Logger

	// Source of the call outcomes. Required.
	Poller Poller

	// Settlement resolver, normally ntt.Contract. Required.
	Resolver Resolver

	// Optional settlement metrics.
	Metrics *metrics.Settlement

	// Exponential backoff of the polling. Zero values are replaced with
	// defaults.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// Driver polls outcomes of the dispatched settlements with exponential backoff
// and resolves them.
type Driver struct {
	log      *zap.Logger
	poller   Poller
	resolver Resolver
	metrics  *metrics.Settlement

	initialInterval, maxInterval, maxElapsed time.Duration
}

// New constructs Driver from the parameters.
func New(prm Prm) (*Driver, error) {
	switch {
	case prm.Poller == nil:
		return nil, errors.New("missing poller")
	case prm.Resolver == nil:
		return nil, errors.New("missing resolver")
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	if prm.InitialInterval <= 0 {
		prm.InitialInterval = DefaultInitialInterval
	}
	if prm.MaxInterval <= 0 {
		prm.MaxInterval = DefaultMaxInterval
	}
	if prm.MaxElapsed <= 0 {
		prm.MaxElapsed = DefaultMaxElapsed
	}

	return &Driver{
		log:      prm.Logger,
		poller:   prm.Poller,
		resolver: prm.Resolver,
		metrics:  prm.Metrics,

		initialInterval: prm.InitialInterval,
		maxInterval:     prm.MaxInterval,
		maxElapsed:      prm.MaxElapsed,
	}, nil
}

func (d *Driver) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialInterval
	b.MaxInterval = d.maxInterval
	b.MaxElapsedTime = d.maxElapsed
	return backoff.WithContext(b, ctx)
}

// Await polls the outcome of the dispatched settlement until it is ready and
// resolves the settlement with it. Polling errors are retried unless they are
// settlement.ErrNoOutcome. If the outcome
// is not ready in time, Await returns ErrTimeout and leaves the settlement
// untouched.
func (d *Driver) Await(ctx context.Context, tok *settlement.Token) (settlement.Receipt, error) {
	if st := tok.State(); st != settlement.Awaiting {
		return settlement.Receipt{}, fmt.Errorf("await %s: unexpected state %s", tok, st)
	}

	start := time.Now()

	o, err := backoff.RetryNotifyWithData(func() (settlement.Outcome, error) {
		o, err := d.poller.Poll(ctx, tok.Handle)
		if err != nil {
			if errors.Is(err, settlement.ErrNoOutcome) {
				return o, backoff.Permanent(err)
			}
			return o, err
		}
		if o.Status == settlement.NotYetResolved {
			return o, errNotReady
		}
		return o, nil
	}, d.newBackOff(ctx), func(err error, next time.Duration) {
		if errors.Is(err, errNotReady) {
			d.log.Debug("settlement outcome is not ready yet",
				zap.Stringer("token", tok), zap.Duration("retry", next))
			return
		}
		d.log.Warn("failed to poll settlement outcome",
			zap.Stringer("token", tok), zap.Duration("retry", next), zap.Error(err))
	})

	d.metrics.Awaited(time.Since(start))

	if err != nil {
		if errors.Is(err, errNotReady) {
			return settlement.Receipt{}, fmt.Errorf("%w: %s", ErrTimeout, tok)
		}
		return settlement.Receipt{}, fmt.Errorf("await %s: %w", tok, err)
	}

	return d.resolver.Resolve(ctx, tok, o)
}

// Result is the result of the background awaiting.
type Result struct {
	Receipt settlement.Receipt
	Err     error
}

// Go runs Await in a separate goroutine. The returned channel receives exactly
// one Result and is closed.
func (d *Driver) Go(ctx context.Context, tok *settlement.Token) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)

		r, err := d.Await(ctx, tok)
		if err != nil {
			d.log.Error("settlement was not resolved", zap.Stringer("token", tok), zap.Error(err))
		}
		ch <- Result{Receipt: r, Err: err}
	}()
	return ch
}
