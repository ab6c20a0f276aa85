package ntt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
	"github.com/nspcc-dev/ntt-ledger/internal/ratelimit"
	"github.com/nspcc-dev/ntt-ledger/ledger"
	"github.com/nspcc-dev/ntt-ledger/metrics"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"go.uber.org/zap"
)

// Default execution budget units of the remote call and its resolution.
const (
	DefaultCallBudget    = 25_000_000_000_000
	DefaultResolveBudget = 5_000_000_000_000
)

// Params groups tunable parameters of the Contract.
type Params struct {
	// Minimum proof-of-intent deposit attached to settlement calls.
	MinAttachedDeposit uint64
	// Budget reserved for the remote call.
	CallBudget uint64
	// Budget reserved for the resolution.
	ResolveBudget uint64
}

// DefaultParams returns default Contract parameters.
func DefaultParams() Params {
	return Params{
		MinAttachedDeposit: 1,
		CallBudget:         DefaultCallBudget,
		ResolveBudget:      DefaultResolveBudget,
	}
}

// Prm groups parameters of New.
type Prm struct {
	// Hash of the ledger reported in notifications.
	Hash util.Uint160

	// Opened ledger. Required.
	Ledger *ledger.Ledger

	// Caller of the remote applications. Required.
	Caller settlement.RemoteCaller

	// Receiver of the ledger notifications. Optional.
	Notifier Notifier

	// Optional, nil disables logging.
	Logger *zap.Logger

	// Per-caller limiter of the mutating calls. Optional.
	Limiter *ratelimit.Limiter

	// Optional settlement metrics.
	Metrics *metrics.Settlement

	// Zero Params are replaced with DefaultParams.
	Params Params
}

// Invocation describes the environment of a mutating call.
type Invocation struct {
	// Account or application making the call.
	Caller util.Uint160
	// Proof-of-intent deposit attached to the call.
	Attached uint64
	// Execution budget the call carries.
	Budget uint64
}

// Contract is the ledger contract: it serves registration, issuance, queries
// and two-phase settlements with remote applications. All state changes are
// serialized, remote calls run concurrently. Contract must be constructed with
// New.
type Contract struct {
	hash     util.Uint160
	ledger   *ledger.Ledger
	caller   settlement.RemoteCaller
	notifier Notifier
	log      *zap.Logger
	limiter  *ratelimit.Limiter
	metrics  *metrics.Settlement
	params   Params
	// CallBudget+ResolveBudget
	reserved uint64

	mtx sync.Mutex
	bg  sync.WaitGroup
}

// New constructs Contract from the parameters.
func New(prm Prm) (*Contract, error) {
	switch {
	case prm.Ledger == nil:
		return nil, errors.New("missing ledger")
	case prm.Caller == nil:
		return nil, errors.New("missing remote caller")
	}

	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	if prm.Params == (Params{}) {
		prm.Params = DefaultParams()
	}

	reserved, err := common.Add(prm.Params.CallBudget, prm.Params.ResolveBudget)
	if err != nil {
		return nil, fmt.Errorf("invalid budgets: %w", err)
	}

	return &Contract{
		hash:     prm.Hash,
		ledger:   prm.Ledger,
		caller:   prm.Caller,
		notifier: prm.Notifier,
		log:      prm.Logger,
		limiter:  prm.Limiter,
		metrics:  prm.Metrics,
		params:   prm.Params,
		reserved: reserved,
	}, nil
}

// Hash returns the ledger hash.
func (c *Contract) Hash() util.Uint160 {
	return c.hash
}

// Wait blocks until all background notifications of the counterparties are
// delivered.
func (c *Contract) Wait() {
	c.bg.Wait()
}

// apply runs f within a single ledger transaction and, if f succeeds, commits
// it and emits events returned by f.
func (c *Contract) apply(f func(tx *ledger.Tx) ([]Event, error)) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.applyLocked(f)
}

func (c *Contract) applyLocked(f func(tx *ledger.Tx) ([]Event, error)) error {
	tx := c.ledger.Begin()

	events, err := f(tx)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	for i := range events {
		c.notify(events[i])
	}
	return nil
}

// view runs read-only f over the current ledger state.
func (c *Contract) view(f func(tx *ledger.Tx) error) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return f(c.ledger.Begin())
}

func (c *Contract) notify(e Event) {
	if c.notifier != nil {
		c.notifier.Notify(e.ToNotification(c.hash))
	}
}

func (c *Contract) checkInvocation(inv Invocation) error {
	if !c.limiter.Allow(inv.Caller, time.Now()) {
		return fmt.Errorf("%w: %s", common.ErrRateLimited, address.Uint160ToString(inv.Caller))
	}
	if err := common.CheckBudget(inv.Budget, c.reserved); err != nil {
		return err
	}
	return common.CheckAttachedDeposit(inv.Attached, c.params.MinAttachedDeposit)
}

// Register creates a ledger account.
func (c *Contract) Register(acc util.Uint160) error {
	var a ledger.Account
	err := c.apply(func(tx *ledger.Tx) ([]Event, error) {
		var err error
		a, err = tx.Register(acc)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	c.log.Info("account registered",
		zap.String("account", address.Uint160ToString(acc)), zap.Uint64("seq", a.Seq))
	return nil
}

// Unregister deletes the ledger account. See ledger.Tx.Unregister for force
// flag. Forfeited value is reported as a single Burn notification with None
// scope.
func (c *Contract) Unregister(acc util.Uint160, force bool) ([]ledger.Residual, error) {
	var residual []ledger.Residual
	err := c.apply(func(tx *ledger.Tx) ([]Event, error) {
		var err error
		residual, err = tx.Unregister(acc, force)
		if err != nil {
			return nil, err
		}

		var total uint64
		for i := range residual {
			total += residual[i].Amount
		}
		if total == 0 {
			return nil, nil
		}
		return []Event{{Name: BurnEvent, Account: acc, Amount: total, Scope: ledger.None, Class: ledger.AnyClass}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unregister: %w", err)
	}

	c.log.Info("account unregistered",
		zap.String("account", address.Uint160ToString(acc)), zap.Bool("force", force), zap.Int("forfeited", len(residual)))
	return residual, nil
}

// IsRegistered checks whether the account is registered.
func (c *Contract) IsRegistered(acc util.Uint160) (bool, error) {
	var ok bool
	err := c.view(func(tx *ledger.Tx) error {
		var err error
		ok, err = tx.IsRegistered(acc)
		return err
	})
	return ok, err
}

// MintPrm groups parameters of Mint.
type MintPrm struct {
	// Scope issuing the value. Must be the caller.
	Scope   util.Uint160
	Account util.Uint160
	Class   ledger.Class
	Amount  uint64
}

// Mint issues value of the application scope to the account.
func (c *Contract) Mint(inv Invocation, prm MintPrm) error {
	if !c.limiter.Allow(inv.Caller, time.Now()) {
		return fmt.Errorf("mint: %w: %s", common.ErrRateLimited, address.Uint160ToString(inv.Caller))
	}
	if err := common.CheckScopeWitness(inv.Caller, prm.Scope); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if prm.Amount == 0 {
		return fmt.Errorf("mint: %w", common.ErrInvalidAmount)
	}

	err := c.apply(func(tx *ledger.Tx) ([]Event, error) {
		if err := tx.Deposit(prm.Account, prm.Scope, prm.Class, prm.Amount); err != nil {
			return nil, err
		}
		return []Event{{Name: MintEvent, Account: prm.Account, Amount: prm.Amount, Scope: prm.Scope, Class: prm.Class}}, nil
	})
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	return nil
}

// DepositPrm groups parameters of DepositToApplication.
type DepositPrm struct {
	// Scope the value is taken from.
	Scope util.Uint160
	// Application receiving the value.
	Receiver util.Uint160
	// AnyClass applies draw-down order.
	Class   ledger.Class
	Amount  uint64
	Message string
}

// DepositToApplication escrows the amount of the caller at the scope to the
// receiver and dispatches onDeposit call to the receiver. The returned Token
// must be resolved with the outcome of the call.
func (c *Contract) DepositToApplication(ctx context.Context, inv Invocation, prm DepositPrm) (*settlement.Token, error) {
	if err := c.checkInvocation(inv); err != nil {
		return nil, fmt.Errorf("deposit to application: %w", err)
	}
	if prm.Amount == 0 {
		return nil, fmt.Errorf("deposit to application: %w", common.ErrInvalidAmount)
	}

	tok := settlement.NewToken(settlement.Deposit, inv.Caller, prm.Scope, prm.Receiver, prm.Class, prm.Amount, prm.Message)

	err := c.apply(func(tx *ledger.Tx) ([]Event, error) {
		parts, err := tx.EscrowDeposit(inv.Caller, prm.Scope, prm.Receiver, prm.Class, prm.Amount)
		if err != nil {
			return nil, err
		}
		tok.Parts = parts
		return []Event{{Name: DepositEvent, Account: inv.Caller, Amount: prm.Amount, Scope: prm.Scope, Counterparty: prm.Receiver, Class: prm.Class}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("deposit to application: %w", err)
	}

	return c.dispatch(ctx, tok, prm.Receiver)
}

// WithdrawPrm groups parameters of WithdrawFromApplication.
type WithdrawPrm struct {
	// Scope the value was deposited from.
	Scope util.Uint160
	// Application holding the value.
	Receiver util.Uint160
	// AnyClass applies draw-down order.
	Class   ledger.Class
	Amount  uint64
	Message string
}

// WithdrawFromApplication returns the amount escrowed from the scope at the
// receiver back to the available balance of the caller and dispatches
// onWithdraw call to the receiver. The withdrawal is final, resolution only
// reports the amount acknowledged by the receiver.
func (c *Contract) WithdrawFromApplication(ctx context.Context, inv Invocation, prm WithdrawPrm) (*settlement.Token, error) {
	if err := c.checkInvocation(inv); err != nil {
		return nil, fmt.Errorf("withdraw from application: %w", err)
	}
	if prm.Amount == 0 {
		return nil, fmt.Errorf("withdraw from application: %w", common.ErrInvalidAmount)
	}
	if prm.Receiver.Equals(ledger.None) {
		return nil, fmt.Errorf("withdraw from application: %w: none receiver", common.ErrInvalidScope)
	}

	tok := settlement.NewToken(settlement.Withdraw, inv.Caller, prm.Scope, prm.Receiver, prm.Class, prm.Amount, prm.Message)

	err := c.apply(func(tx *ledger.Tx) ([]Event, error) {
		consumed, err := tx.EscrowWithdraw(inv.Caller, prm.Scope, prm.Receiver, prm.Class, prm.Amount)
		if err != nil {
			return nil, err
		}
		tok.Parts = classParts(consumed)
		return []Event{{Name: WithdrawEvent, Account: inv.Caller, Amount: prm.Amount, Scope: prm.Scope, Counterparty: prm.Receiver, Class: prm.Class}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("withdraw from application: %w", err)
	}

	return c.dispatch(ctx, tok, prm.Receiver)
}

// BurnPrm groups parameters of Burn.
type BurnPrm struct {
	// Scope which value is burned. The scope application is asked to
	// confirm the burn.
	Scope   util.Uint160
	Class   ledger.Class
	Amount  uint64
	Message string
}

// Burn checks that the caller holds the amount at the scope and dispatches
// onBurn call to the scope application. Nothing is changed until resolution,
// which destroys the amount used by the application.
func (c *Contract) Burn(ctx context.Context, inv Invocation, prm BurnPrm) (*settlement.Token, error) {
	if err := c.checkInvocation(inv); err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	if prm.Amount == 0 {
		return nil, fmt.Errorf("burn: %w", common.ErrInvalidAmount)
	}
	if prm.Scope.Equals(ledger.None) {
		return nil, fmt.Errorf("burn: %w: none scope can not be a target", common.ErrInvalidScope)
	}

	err := c.view(func(tx *ledger.Tx) error {
		ok, err := tx.IsRegistered(inv.Caller)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", common.ErrNotRegistered, address.Uint160ToString(inv.Caller))
		}
		total, err := tx.TotalBalanceOf(inv.Caller, prm.Scope, prm.Class)
		if err != nil {
			return err
		}
		if total < prm.Amount {
			return fmt.Errorf("%w: %d < %d", common.ErrInsufficientBalance, total, prm.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}

	tok := settlement.NewToken(settlement.Burn, inv.Caller, prm.Scope, prm.Scope, prm.Class, prm.Amount, prm.Message)
	return c.dispatch(ctx, tok, prm.Scope)
}

// dispatch starts the remote call of the settlement. If the call can not be
// started, the settlement is resolved as failed right away.
func (c *Contract) dispatch(ctx context.Context, tok *settlement.Token, target util.Uint160) (*settlement.Token, error) {
	c.metrics.Started(tok.Kind)

	h, err := c.caller.Invoke(ctx, target, tok.Call())
	if err != nil {
		err = fmt.Errorf("dispatch %s to %s: %w", tok.Kind.Method(), target.StringLE(), err)

		r, rErr := c.Resolve(ctx, tok, settlement.Failed())
		if rErr != nil {
			return nil, errors.Join(err, fmt.Errorf("roll back: %w", rErr))
		}

		c.log.Warn("remote call was not dispatched, settlement rolled back",
			zap.Stringer("token", tok), zap.Uint64("refunded", r.Refunded), zap.Error(err))
		return nil, err
	}

	if err = tok.Dispatched(h); err != nil {
		return nil, err
	}

	c.log.Debug("settlement dispatched",
		zap.Stringer("token", tok), zap.Stringer("kind", tok.Kind),
		zap.String("account", address.Uint160ToString(tok.Sender)),
		zap.String("target", target.StringLE()), zap.Uint64("amount", tok.Amount))

	return tok, nil
}

// Resolve finishes the settlement with the outcome of its remote call. The
// used amount is derived with settlement.UsedAmount:
//   - deposit returns unused part of the escrow to the account;
//   - withdrawal is already final and is only reported;
//   - burn destroys the used part of the account total.
//
// Not yet resolved outcome aborts the settlement without any change and
// returns common.ErrProtocolViolation.
func (c *Contract) Resolve(ctx context.Context, tok *settlement.Token, o settlement.Outcome) (settlement.Receipt, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := tok.BeginResolve(); err != nil {
		return settlement.Receipt{}, err
	}

	used, err := settlement.UsedAmount(tok.Amount, o)
	if err != nil {
		tok.Abort()
		c.metrics.Aborted(tok.Kind)
		c.log.Error("settlement aborted", zap.Stringer("token", tok), zap.Error(err))
		return settlement.Receipt{}, fmt.Errorf("resolve %s: %w", tok, err)
	}

	r := settlement.Receipt{
		Token:     tok.String(),
		Kind:      tok.Kind,
		Requested: tok.Amount,
		Used:      used,
	}

	var withdrawn []ledger.Consumed

	err = c.applyLocked(func(tx *ledger.Tx) ([]Event, error) {
		switch tok.Kind {
		case settlement.Deposit:
			return c.resolveDeposit(tx, tok, used, &r)
		case settlement.Burn:
			events, consumed, err := c.resolveBurn(tx, tok, used, &r)
			withdrawn = consumed
			return events, err
		default:
			return nil, nil
		}
	})
	if err != nil {
		return settlement.Receipt{}, fmt.Errorf("resolve %s: %w", tok, err)
	}

	tok.Resolved()
	c.metrics.Resolved(r)

	for _, x := range withdrawn {
		c.notifyWithdrawn(ctx, tok, x)
	}

	c.log.Info("settlement resolved",
		zap.Stringer("token", tok), zap.Stringer("kind", tok.Kind), zap.Stringer("outcome", o.Status),
		zap.Uint64("requested", r.Requested), zap.Uint64("used", r.Used),
		zap.Uint64("refunded", r.Refunded), zap.Uint64("burned", r.Burned))

	return r, nil
}

func (c *Contract) resolveDeposit(tx *ledger.Tx, tok *settlement.Token, used uint64, r *settlement.Receipt) ([]Event, error) {
	unused := tok.Amount - used
	if unused == 0 {
		return nil, nil
	}

	refunded, err := tx.EscrowRefund(tok.Sender, tok.Scope, tok.Receiver, refundParts(tok.Parts, unused))
	if err != nil {
		if errors.Is(err, common.ErrNotRegistered) {
			c.log.Warn("account was unregistered before refund", zap.Stringer("token", tok))
			return nil, nil
		}
		return nil, err
	}

	r.Refunded = ledger.Sum(refunded)
	if r.Refunded == 0 {
		return nil, nil
	}
	return []Event{{Name: WithdrawEvent, Account: tok.Sender, Amount: r.Refunded, Scope: tok.Scope, Counterparty: tok.Receiver, Class: tok.Class}}, nil
}

func (c *Contract) resolveBurn(tx *ledger.Tx, tok *settlement.Token, used uint64, r *settlement.Receipt) ([]Event, []ledger.Consumed, error) {
	if used == 0 {
		return nil, nil, nil
	}

	ok, err := tx.IsRegistered(tok.Sender)
	if err != nil || !ok {
		return nil, nil, err
	}
	total, err := tx.TotalBalanceOf(tok.Sender, tok.Scope, tok.Class)
	if err != nil {
		return nil, nil, err
	}

	amount := min(used, total)
	if amount == 0 {
		return nil, nil, nil
	}

	_, consumed, err := tx.Burn(tok.Sender, tok.Scope, tok.Class, amount)
	if err != nil {
		return nil, nil, err
	}

	r.Burned = amount
	return []Event{{Name: BurnEvent, Account: tok.Sender, Amount: amount, Scope: tok.Scope, Class: tok.Class}}, consumed, nil
}

// notifyWithdrawn tells the counterparty that value escrowed at it was
// burned. The call result is not awaited.
func (c *Contract) notifyWithdrawn(ctx context.Context, tok *settlement.Token, x ledger.Consumed) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		err := c.caller.Notify(context.WithoutCancel(ctx), x.Counterparty, settlement.Call{
			Method:  settlement.MethodOnWithdraw,
			Sender:  tok.Sender,
			Scope:   tok.Scope,
			Class:   x.Class,
			Amount:  x.Amount,
			Message: tok.Message,
		})
		if err != nil {
			c.log.Warn("failed to notify counterparty about burned escrow",
				zap.Stringer("token", tok), zap.String("counterparty", x.Counterparty.StringLE()), zap.Error(err))
		}
	}()
}

// refundParts selects amount to return from the parts taken, the last taken
// class is returned first.
func refundParts(parts []ledger.ClassAmount, amount uint64) []ledger.ClassAmount {
	var res []ledger.ClassAmount
	for i := len(parts) - 1; i >= 0 && amount > 0; i-- {
		take := min(parts[i].Amount, amount)
		res = append(res, ledger.ClassAmount{Class: parts[i].Class, Amount: take})
		amount -= take
	}
	return res
}

func classParts(consumed []ledger.Consumed) []ledger.ClassAmount {
	var res []ledger.ClassAmount
	for _, x := range consumed {
		if n := len(res); n > 0 && res[n-1].Class == x.Class {
			res[n-1].Amount += x.Amount
			continue
		}
		res = append(res, ledger.ClassAmount{Class: x.Class, Amount: x.Amount})
	}
	return res
}

// BalanceOf returns available amount of the account. See ledger.Tx.BalanceOf.
func (c *Contract) BalanceOf(acc, scope util.Uint160, cl ledger.Class) (uint64, error) {
	var v uint64
	err := c.view(func(tx *ledger.Tx) error {
		var err error
		v, err = tx.BalanceOf(acc, scope, cl)
		return err
	})
	return v, err
}

// TotalBalanceOf returns available and escrowed amount of the account.
func (c *Contract) TotalBalanceOf(acc, scope util.Uint160, cl ledger.Class) (uint64, error) {
	var v uint64
	err := c.view(func(tx *ledger.Tx) error {
		var err error
		v, err = tx.TotalBalanceOf(acc, scope, cl)
		return err
	})
	return v, err
}

// EscrowBalanceOf returns amount escrowed by the account from the scope to the
// counterparty.
func (c *Contract) EscrowBalanceOf(acc, scope, party util.Uint160, cl ledger.Class) (uint64, error) {
	var v uint64
	err := c.view(func(tx *ledger.Tx) error {
		var err error
		v, err = tx.EscrowBalanceOf(acc, scope, party, cl)
		return err
	})
	return v, err
}

// TotalSupply returns total supply of the scope.
func (c *Contract) TotalSupply(scope util.Uint160, cl ledger.Class) (uint64, error) {
	var v uint64
	err := c.view(func(tx *ledger.Tx) error {
		var err error
		v, err = tx.TotalSupply(scope, cl)
		return err
	})
	return v, err
}

// HasScope checks whether the account has an entry at the scope.
func (c *Contract) HasScope(acc, scope util.Uint160) bool {
	var ok bool
	_ = c.view(func(tx *ledger.Tx) error {
		ok = tx.HasScope(acc, scope)
		return nil
	})
	return ok
}
