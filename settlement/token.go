package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
	"github.com/nspcc-dev/ntt-ledger/ledger"
)

// Kind is a type of the settled operation.
type Kind byte

const (
	// Deposit moves value from the account into the receiver application.
	Deposit Kind = iota + 1
	// Withdraw returns value escrowed at the receiver application.
	Withdraw
	// Burn destroys value used by the source application.
	Burn
)

// Methods of the remote applications.
const (
	MethodOnDeposit  = "onDeposit"
	MethodOnWithdraw = "onWithdraw"
	MethodOnBurn     = "onBurn"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	case Burn:
		return "burn"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Method returns remote method invoked for the operation kind.
func (k Kind) Method() string {
	switch k {
	case Deposit:
		return MethodOnDeposit
	case Withdraw:
		return MethodOnWithdraw
	case Burn:
		return MethodOnBurn
	default:
		return ""
	}
}

// State is a stage of the settlement.
type State byte

const (
	Initiated State = iota
	Awaiting
	Resolved
	Aborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Initiated:
		return "initiated"
	case Awaiting:
		return "awaiting"
	case Resolved:
		return "resolved"
	case Aborted:
		return "aborted"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Handle references the dispatched remote call.
type Handle = util.Uint256

// Call is a remote invocation of the application.
type Call struct {
	Method string
	// Account which value is settled.
	Sender util.Uint160
	// Scope the value comes from.
	Scope  util.Uint160
	Class  ledger.Class
	Amount uint64
	// Message is an opaque payload passed through to the application.
	Message string
}

// ErrNoOutcome is returned by RemoteCaller.Poll when the outcome of the call
// can never be obtained: the handle is unknown or already consumed, or the
// call result is malformed. Retrying such Poll is useless.
var ErrNoOutcome = errors.New("call outcome is unavailable")

// RemoteCaller dispatches calls to remote applications and reports their
// results.
type RemoteCaller interface {
	// Invoke starts the call on the target application and returns handle
	// to poll its result with.
	Invoke(ctx context.Context, target util.Uint160, call Call) (Handle, error)
	// Notify starts the call on the target application without tracking its
	// result.
	Notify(ctx context.Context, target util.Uint160, call Call) error
	// Poll returns current outcome of the call. Outcome status is
	// NotYetResolved until the call is finished.
	Poll(ctx context.Context, h Handle) (Outcome, error)
}

// Token is an in-flight settlement. Token is created by the operation which
// started the settlement and must be passed to the resolution as is.
type Token struct {
	ID   uuid.UUID
	Kind Kind

	Sender util.Uint160
	Scope  util.Uint160
	// Receiver is the application the call is dispatched to.
	Receiver util.Uint160
	Class    ledger.Class
	Amount   uint64
	Message  string

	// Parts is a per-class breakdown of the optimistic mutation.
	Parts []ledger.ClassAmount

	Handle Handle

	state State
}

// NewToken returns Token of the initiated settlement.
func NewToken(kind Kind, sender, scope, receiver util.Uint160, c ledger.Class, amount uint64, msg string) *Token {
	return &Token{
		ID:       uuid.New(),
		Kind:     kind,
		Sender:   sender,
		Scope:    scope,
		Receiver: receiver,
		Class:    c,
		Amount:   amount,
		Message:  msg,
	}
}

// String returns base58 form of the token ID.
func (t *Token) String() string {
	return base58.Encode(t.ID[:])
}

// State returns current stage of the settlement.
func (t *Token) State() State {
	return t.state
}

// Call returns remote call of the settlement.
func (t *Token) Call() Call {
	return Call{
		Method:  t.Kind.Method(),
		Sender:  t.Sender,
		Scope:   t.Scope,
		Class:   t.Class,
		Amount:  t.Amount,
		Message: t.Message,
	}
}

// Dispatched records the handle of the started remote call.
func (t *Token) Dispatched(h Handle) error {
	if t.state != Initiated {
		return fmt.Errorf("dispatch %s settlement %s", t.state, t)
	}
	t.Handle = h
	t.state = Awaiting
	return nil
}

// BeginResolve checks that the settlement can be resolved.
func (t *Token) BeginResolve() error {
	if t.state != Initiated && t.state != Awaiting {
		return fmt.Errorf("%w: %s is %s", common.ErrAlreadyResolved, t, t.state)
	}
	return nil
}

// Resolved finishes the settlement.
func (t *Token) Resolved() {
	t.state = Resolved
}

// Abort finishes the settlement without any state change.
func (t *Token) Abort() {
	t.state = Aborted
}

// ParseID decodes token ID from its string form.
func ParseID(s string) (uuid.UUID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("decode base58: %w", err)
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("decode UUID: %w", err)
	}
	return id, nil
}

// Receipt summarizes the resolved settlement.
type Receipt struct {
	Token     string
	Kind      Kind
	Requested uint64
	// Used is the amount acknowledged by the remote application.
	Used uint64
	// Refunded is returned to the account available balance.
	Refunded uint64
	// Burned is destroyed.
	Burned uint64
}
