/*
Package receiver provides settlement.RemoteCaller dispatching calls to the
receiver contracts deployed in the Neo N3 network.

Every call is sent as a transaction invoking the contract method named after
the settlement kind with (sender, scope, class, amount, message) arguments. The
transaction hash is the call handle. The outcome is read from the application
log of the transaction: FAULT fails the call, HALT succeeds with the value
returned by the method as payload.
*/
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/neorpc"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"go.uber.org/zap"
)

// Actor sends transactions to the network.
type Actor interface {
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
}

// LogReader reads execution results of the persisted transactions.
type LogReader interface {
	// GetApplicationLog returns neorpc.ErrUnknownScriptContainer for
	// transactions which are not persisted yet.
	GetApplicationLog(hash util.Uint256, trig *trigger.Type) (*result.ApplicationLog, error)
}

// Caller is a settlement.RemoteCaller over Neo RPC. Caller must be
// constructed with New.
type Caller struct {
	act  Actor
	logs LogReader
	log  *zap.Logger
}

// New returns Caller sending calls with act and reading their results with
// logs. Nil logger disables logging.
func New(act Actor, logs LogReader, log *zap.Logger) *Caller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Caller{act: act, logs: logs, log: log}
}

// Invoke implements settlement.RemoteCaller.
func (c *Caller) Invoke(ctx context.Context, target util.Uint160, call settlement.Call) (settlement.Handle, error) {
	if err := ctx.Err(); err != nil {
		return settlement.Handle{}, err
	}
	return c.send(target, call)
}

// Notify implements settlement.RemoteCaller. The transaction is sent the same
// way as by Invoke, its hash is only logged.
func (c *Caller) Notify(ctx context.Context, target util.Uint160, call settlement.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.send(target, call)
	return err
}

func (c *Caller) send(target util.Uint160, call settlement.Call) (util.Uint256, error) {
	txHash, vub, err := c.act.SendCall(target, call.Method,
		call.Sender,
		call.Scope,
		int64(call.Class),
		new(big.Int).SetUint64(call.Amount),
		call.Message,
	)
	if err != nil {
		return util.Uint256{}, fmt.Errorf("send '%s' transaction to %s: %w", call.Method, target.StringLE(), err)
	}

	c.log.Debug("application call sent",
		zap.Stringer("contract", target), zap.String("method", call.Method),
		zap.Stringer("tx", txHash), zap.Uint32("vub", vub))

	return txHash, nil
}

// Poll implements settlement.RemoteCaller.
func (c *Caller) Poll(ctx context.Context, h settlement.Handle) (settlement.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return settlement.Outcome{}, err
	}

	trig := trigger.Application

	log, err := c.logs.GetApplicationLog(h, &trig)
	if err != nil {
		if errors.Is(err, neorpc.ErrUnknownScriptContainer) {
			return settlement.Pending(), nil
		}
		return settlement.Outcome{}, fmt.Errorf("get application log of %s: %w", h.StringLE(), err)
	}

	return OutcomeFromApplicationLog(log)
}

// OutcomeFromApplicationLog converts the application log of the call
// transaction to the call outcome.
func OutcomeFromApplicationLog(log *result.ApplicationLog) (settlement.Outcome, error) {
	if log == nil {
		return settlement.Outcome{}, fmt.Errorf("%w: nil application log", settlement.ErrNoOutcome)
	}

	for _, ex := range log.Executions {
		if ex.Trigger != trigger.Application {
			continue
		}
		if ex.VMState != vmstate.Halt {
			return settlement.Failed(), nil
		}
		if len(ex.Stack) == 0 {
			return settlement.Succeeded(nil), nil
		}
		return settlement.Succeeded(payloadFromStackItem(ex.Stack[0])), nil
	}

	return settlement.Outcome{}, fmt.Errorf("%w: no application execution in the log", settlement.ErrNoOutcome)
}

// payloadFromStackItem renders the returned item as JSON: integers as numbers,
// byte strings as strings. Other items give empty payload.
func payloadFromStackItem(item stackitem.Item) []byte {
	switch item.Type() {
	case stackitem.IntegerT:
		n, err := item.TryInteger()
		if err != nil {
			return nil
		}
		return []byte(n.String())
	case stackitem.ByteArrayT, stackitem.BufferT:
		b, err := item.TryBytes()
		if err != nil {
			return nil
		}
		data, err := json.Marshal(string(b))
		if err != nil {
			return nil
		}
		return data
	default:
		return nil
	}
}
