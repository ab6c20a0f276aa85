// Package inproc provides settlement.RemoteCaller running applications as Go
// handlers within the current process.
package inproc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"go.uber.org/zap"
)

var (
	// ErrUnknownTarget is returned when no application is registered for the
	// call target.
	ErrUnknownTarget = errors.New("unknown application")
	// ErrUnknownHandle is returned for handles not issued by the Network or
	// already reported as finished.
	ErrUnknownHandle = fmt.Errorf("%w: unknown call handle", settlement.ErrNoOutcome)
)

// Handler processes the call of the application. Returned payload is passed
// as successful outcome, any error fails the call.
type Handler func(ctx context.Context, call settlement.Call) ([]byte, error)

type pendingCall struct {
	done    chan struct{}
	outcome settlement.Outcome
}

// Network routes calls to the registered applications. Every call is executed
// in a separate goroutine. Network must be constructed with New.
type Network struct {
	log *zap.Logger

	mtx      sync.Mutex
	handlers map[util.Uint160]Handler
	calls    map[settlement.Handle]*pendingCall
}

// New returns empty Network. Nil logger disables logging.
func New(log *zap.Logger) *Network {
	if log == nil {
		log = zap.NewNop()
	}
	return &Network{
		log:      log,
		handlers: make(map[util.Uint160]Handler),
		calls:    make(map[settlement.Handle]*pendingCall),
	}
}

// Register sets handler of the application. Previous handler, if any, is
// replaced.
func (n *Network) Register(app util.Uint160, h Handler) {
	n.mtx.Lock()
	n.handlers[app] = h
	n.mtx.Unlock()
}

// Invoke implements settlement.RemoteCaller.
func (n *Network) Invoke(ctx context.Context, target util.Uint160, call settlement.Call) (settlement.Handle, error) {
	if err := ctx.Err(); err != nil {
		return settlement.Handle{}, err
	}

	id := uuid.New()
	h := hash.Sha256(id[:])
	pc := &pendingCall{done: make(chan struct{})}

	n.mtx.Lock()
	handler, ok := n.handlers[target]
	if ok {
		n.calls[h] = pc
	}
	n.mtx.Unlock()

	if !ok {
		return settlement.Handle{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target.StringLE())
	}

	go n.run(ctx, target, call, handler, pc)

	return h, nil
}

// Notify implements settlement.RemoteCaller. The call is executed like with
// Invoke, but nothing is kept after it is finished.
func (n *Network) Notify(ctx context.Context, target util.Uint160, call settlement.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mtx.Lock()
	handler, ok := n.handlers[target]
	n.mtx.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target.StringLE())
	}

	go n.run(ctx, target, call, handler, &pendingCall{done: make(chan struct{})})

	return nil
}

func (n *Network) run(ctx context.Context, target util.Uint160, call settlement.Call, handler Handler, pc *pendingCall) {
	defer close(pc.done)

	payload, err := handler(context.WithoutCancel(ctx), call)
	if err != nil {
		n.log.Debug("application call failed",
			zap.Stringer("app", target), zap.String("method", call.Method), zap.Error(err))
		pc.outcome = settlement.Failed()
		return
	}
	pc.outcome = settlement.Succeeded(payload)
}

// Poll implements settlement.RemoteCaller. The handle is forgotten once the
// finished outcome is returned.
func (n *Network) Poll(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return settlement.Outcome{}, err
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	pc, ok := n.calls[h]
	if !ok {
		return settlement.Outcome{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h.StringLE())
	}

	select {
	case <-pc.done:
		delete(n.calls, h)
		return pc.outcome, nil
	default:
		return settlement.Pending(), nil
	}
}

// Wait blocks until the call is finished and returns its outcome.
func (n *Network) Wait(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	n.mtx.Lock()
	pc, ok := n.calls[h]
	n.mtx.Unlock()
	if !ok {
		return settlement.Outcome{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h.StringLE())
	}

	select {
	case <-ctx.Done():
		return settlement.Outcome{}, ctx.Err()
	case <-pc.done:
	}
	return n.Poll(ctx, h)
}

// Pending returns the number of calls which outcome has not been taken yet.
func (n *Network) Pending() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.calls)
}

// Unused returns Handler which acknowledges the call leaving unused amount
// returned by f.
func Unused(f func(settlement.Call) uint64) Handler {
	return func(_ context.Context, call settlement.Call) ([]byte, error) {
		return settlement.SucceededUnused(f(call)).Payload, nil
	}
}
