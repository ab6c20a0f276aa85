package ntt

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/ntt-ledger/ledger"
)

// Notification names.
const (
	MintEvent     = "Mint"
	BurnEvent     = "Burn"
	DepositEvent  = "Deposit"
	WithdrawEvent = "Withdraw"
)

// Event is a ledger notification.
type Event struct {
	Name    string
	Account util.Uint160
	Amount  uint64
	Scope   util.Uint160
	// Counterparty is ledger.None if the event has no counterparty.
	Counterparty util.Uint160
	Class        ledger.Class
}

// ToNotification converts Event into notification of the ledger with the
// given hash.
func (e Event) ToNotification(ledgerHash util.Uint160) state.NotificationEvent {
	var party stackitem.Item = stackitem.Null{}
	if !e.Counterparty.Equals(ledger.None) {
		party = stackitem.NewByteArray(e.Counterparty.BytesBE())
	}

	return state.NotificationEvent{
		ScriptHash: ledgerHash,
		Name:       e.Name,
		Item: stackitem.NewArray([]stackitem.Item{
			stackitem.NewByteArray(e.Account.BytesBE()),
			stackitem.NewBigInteger(new(big.Int).SetUint64(e.Amount)),
			stackitem.NewByteArray(e.Scope.BytesBE()),
			party,
			stackitem.NewBigInteger(big.NewInt(int64(e.Class))),
		}),
	}
}

// FromStackItem converts provided [stackitem.Array] to Event or returns an
// error if it's not possible to do to so. Name is not a part of the item and
// is left untouched.
func (e *Event) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 5 {
		return errors.New("wrong number of structure elements")
	}

	var err error

	e.Account, err = hashFromItem(arr[0])
	if err != nil {
		return fmt.Errorf("field Account: %w", err)
	}

	amount, err := arr[1].TryInteger()
	if err != nil {
		return fmt.Errorf("field Amount: %w", err)
	}
	if !amount.IsUint64() {
		return fmt.Errorf("field Amount: %s is out of range", amount)
	}
	e.Amount = amount.Uint64()

	e.Scope, err = hashFromItem(arr[2])
	if err != nil {
		return fmt.Errorf("field Scope: %w", err)
	}

	if _, ok := arr[3].(stackitem.Null); ok {
		e.Counterparty = ledger.None
	} else if e.Counterparty, err = hashFromItem(arr[3]); err != nil {
		return fmt.Errorf("field Counterparty: %w", err)
	}

	class, err := arr[4].TryInteger()
	if err != nil {
		return fmt.Errorf("field Class: %w", err)
	}
	if !class.IsInt64() || class.Int64() < 0 || class.Int64() > int64(ledger.Secondary) {
		return fmt.Errorf("field Class: unknown class %s", class)
	}
	e.Class = ledger.Class(class.Int64())

	return nil
}

func hashFromItem(item stackitem.Item) (util.Uint160, error) {
	b, err := item.TryBytes()
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(b)
}

// EventsFromNotifications decodes ledger events from notifications. Other
// notifications are skipped.
func EventsFromNotifications(ns []state.NotificationEvent) ([]Event, error) {
	var res []Event
	for i, n := range ns {
		switch n.Name {
		case MintEvent, BurnEvent, DepositEvent, WithdrawEvent:
		default:
			continue
		}
		e := Event{Name: n.Name}
		if err := e.FromStackItem(n.Item); err != nil {
			return nil, fmt.Errorf("failed to deserialize %s from stackitem (event #%d): %w", n.Name, i, err)
		}
		res = append(res, e)
	}
	return res, nil
}

// Notifier receives notifications of the ledger.
type Notifier interface {
	Notify(state.NotificationEvent)
}

// Journal is a Notifier keeping all received notifications in memory.
type Journal struct {
	mtx    sync.Mutex
	events []state.NotificationEvent
}

// Notify implements Notifier.
func (j *Journal) Notify(e state.NotificationEvent) {
	j.mtx.Lock()
	j.events = append(j.events, e)
	j.mtx.Unlock()
}

// Notifications returns all notifications received so far.
func (j *Journal) Notifications() []state.NotificationEvent {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return append([]state.NotificationEvent(nil), j.events...)
}

// Events returns decoded ledger events received so far.
func (j *Journal) Events() ([]Event, error) {
	return EventsFromNotifications(j.Notifications())
}
