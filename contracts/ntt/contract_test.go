package ntt

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
	"github.com/nspcc-dev/ntt-ledger/internal/ratelimit"
	"github.com/nspcc-dev/ntt-ledger/ledger"
	"github.com/nspcc-dev/ntt-ledger/metrics"
	"github.com/nspcc-dev/ntt-ledger/rpc/inproc"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	ledgerHash = util.Uint160{0xee}

	alice = util.Uint160{0xa1}
	bob   = util.Uint160{0xb0}

	appA = util.Uint160{0x01}
	appB = util.Uint160{0x02}
	appC = util.Uint160{0x03}
)

type testEnv struct {
	ctx     context.Context
	c       *Contract
	net     *inproc.Network
	journal *Journal
	ledger  *ledger.Ledger
}

func newTestEnv(tb testing.TB, mod ...func(*Prm)) *testEnv {
	l, err := ledger.Open(storage.NewMemoryStore())
	require.NoError(tb, err)

	e := &testEnv{
		ctx:     context.Background(),
		net:     inproc.New(zaptest.NewLogger(tb)),
		journal: new(Journal),
		ledger:  l,
	}

	prm := Prm{
		Hash:     ledgerHash,
		Ledger:   l,
		Caller:   e.net,
		Notifier: e.journal,
		Logger:   zaptest.NewLogger(tb),
		Metrics:  metrics.NewSettlement(nil),
	}
	for _, f := range mod {
		f(&prm)
	}

	e.c, err = New(prm)
	require.NoError(tb, err)

	require.NoError(tb, e.c.Register(alice))
	return e
}

func validInvocation(caller util.Uint160) Invocation {
	return Invocation{
		Caller:   caller,
		Attached: 1,
		Budget:   DefaultCallBudget + DefaultResolveBudget + 1,
	}
}

func (e *testEnv) mint(tb testing.TB, acc, scope util.Uint160, c ledger.Class, amount uint64) {
	require.NoError(tb, e.c.Mint(validInvocation(scope), MintPrm{Scope: scope, Account: acc, Class: c, Amount: amount}))
}

func (e *testEnv) outcome(tb testing.TB, tok *settlement.Token) settlement.Outcome {
	o, err := e.net.Wait(e.ctx, tok.Handle)
	require.NoError(tb, err)
	return o
}

func (e *testEnv) requireBalance(tb testing.TB, acc, scope util.Uint160, c ledger.Class, exp uint64) {
	v, err := e.c.BalanceOf(acc, scope, c)
	require.NoError(tb, err)
	require.EqualValues(tb, exp, v)
}

func (e *testEnv) requireEscrow(tb testing.TB, acc, scope, party util.Uint160, c ledger.Class, exp uint64) {
	v, err := e.c.EscrowBalanceOf(acc, scope, party, c)
	require.NoError(tb, err)
	require.EqualValues(tb, exp, v)
}

func (e *testEnv) requireSupply(tb testing.TB, scope util.Uint160, c ledger.Class, exp uint64) {
	v, err := e.c.TotalSupply(scope, c)
	require.NoError(tb, err)
	require.EqualValues(tb, exp, v)
}

func (e *testEnv) requireConsistent(tb testing.TB) {
	require.NoError(tb, e.ledger.Begin().CheckInvariants())
}

func (e *testEnv) eventNames(tb testing.TB) []string {
	events, err := e.journal.Events()
	require.NoError(tb, err)
	names := make([]string, len(events))
	for i := range events {
		names[i] = events[i].Name
	}
	return names
}

func refuse(context.Context, settlement.Call) ([]byte, error) {
	return nil, errors.New("refused")
}

func unused(n uint64) inproc.Handler {
	return inproc.Unused(func(settlement.Call) uint64 { return n })
}

func TestNew(t *testing.T) {
	_, err := New(Prm{Caller: inproc.New(nil)})
	require.Error(t, err)

	l, err := ledger.Open(storage.NewMemoryStore())
	require.NoError(t, err)
	_, err = New(Prm{Ledger: l})
	require.Error(t, err)

	c, err := New(Prm{Ledger: l, Caller: inproc.New(nil), Hash: ledgerHash})
	require.NoError(t, err)
	require.Equal(t, DefaultParams(), c.params)
	require.Equal(t, ledgerHash, c.Hash())

	_, err = New(Prm{Ledger: l, Caller: inproc.New(nil), Params: Params{
		MinAttachedDeposit: 1,
		CallBudget:         math.MaxUint64,
		ResolveBudget:      1,
	}})
	require.ErrorIs(t, err, common.ErrOverflow)
}

func TestRegistration(t *testing.T) {
	e := newTestEnv(t)

	ok, err := e.c.IsRegistered(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, e.c.Register(alice), common.ErrAlreadyRegistered)

	e.mint(t, alice, appA, ledger.Primary, 10)
	require.True(t, e.c.HasScope(alice, appA))

	_, err = e.c.Unregister(alice, false)
	require.ErrorIs(t, err, common.ErrNonZeroBalance)

	residual, err := e.c.Unregister(alice, true)
	require.NoError(t, err)
	require.Equal(t, []ledger.Residual{{Scope: appA, Class: ledger.Primary, Amount: 10}}, residual)
	e.requireSupply(t, ledger.None, ledger.AnyClass, 0)

	events, err := e.journal.Events()
	require.NoError(t, err)
	require.Equal(t, []Event{
		{Name: MintEvent, Account: alice, Amount: 10, Scope: appA, Class: ledger.Primary},
		{Name: BurnEvent, Account: alice, Amount: 10, Scope: ledger.None, Class: ledger.AnyClass},
	}, events)
}

func TestMint(t *testing.T) {
	e := newTestEnv(t)

	err := e.c.Mint(validInvocation(appB), MintPrm{Scope: appA, Account: alice, Class: ledger.Primary, Amount: 1})
	require.ErrorIs(t, err, common.ErrScopeWitnessFailed)

	err = e.c.Mint(validInvocation(appA), MintPrm{Scope: appA, Account: alice, Class: ledger.Primary})
	require.ErrorIs(t, err, common.ErrInvalidAmount)

	err = e.c.Mint(validInvocation(appA), MintPrm{Scope: appA, Account: bob, Class: ledger.Primary, Amount: 1})
	require.ErrorIs(t, err, common.ErrNotRegistered)

	err = e.c.Mint(validInvocation(appA), MintPrm{Scope: appA, Account: alice, Class: ledger.AnyClass, Amount: 1})
	require.ErrorIs(t, err, common.ErrInvalidClass)

	e.mint(t, alice, appA, ledger.Secondary, 7)
	e.requireBalance(t, alice, ledger.None, ledger.Secondary, 7)
	e.requireSupply(t, appA, ledger.Secondary, 7)
	e.requireConsistent(t)
}

func TestDepositFailureReversal(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, refuse)
	e.mint(t, alice, appA, ledger.Primary, 100)

	tok, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 40,
	})
	require.NoError(t, err)
	require.Equal(t, settlement.Awaiting, tok.State())
	require.Equal(t, []ledger.ClassAmount{{Class: ledger.Primary, Amount: 40}}, tok.Parts)

	e.requireBalance(t, alice, appA, ledger.Primary, 60)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 40)
	e.requireConsistent(t)

	r, err := e.c.Resolve(e.ctx, tok, e.outcome(t, tok))
	require.NoError(t, err)
	require.Equal(t, settlement.Receipt{
		Token:     tok.String(),
		Kind:      settlement.Deposit,
		Requested: 40,
		Refunded:  40,
	}, r)
	require.Equal(t, settlement.Resolved, tok.State())

	e.requireBalance(t, alice, appA, ledger.Primary, 100)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 0)
	e.requireSupply(t, appA, ledger.Primary, 100)
	e.requireConsistent(t)
	require.Equal(t, []string{MintEvent, DepositEvent, WithdrawEvent}, e.eventNames(t))

	_, err = e.c.Resolve(e.ctx, tok, settlement.Failed())
	require.ErrorIs(t, err, common.ErrAlreadyResolved)
}

func TestDepositPartialUse(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(15))
	e.mint(t, alice, appA, ledger.Primary, 100)

	tok, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 40, Message: "order #1",
	})
	require.NoError(t, err)

	r, err := e.c.Resolve(e.ctx, tok, e.outcome(t, tok))
	require.NoError(t, err)
	require.EqualValues(t, 25, r.Used)
	require.EqualValues(t, 15, r.Refunded)

	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 25)
	e.requireBalance(t, alice, appA, ledger.Primary, 75)
	e.requireConsistent(t)

	total, err := e.c.TotalBalanceOf(alice, appA, ledger.AnyClass)
	require.NoError(t, err)
	require.EqualValues(t, 100, total)
}

func TestDepositDrawDownRefund(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(12))
	e.mint(t, alice, appA, ledger.Secondary, 10)
	e.mint(t, alice, appA, ledger.Primary, 30)

	tok, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.AnyClass, Amount: 25,
	})
	require.NoError(t, err)
	require.Equal(t, []ledger.ClassAmount{
		{Class: ledger.Secondary, Amount: 10},
		{Class: ledger.Primary, Amount: 15},
	}, tok.Parts)
	e.requireBalance(t, alice, appA, ledger.Secondary, 0)
	e.requireBalance(t, alice, appA, ledger.Primary, 15)

	_, err = e.c.Resolve(e.ctx, tok, e.outcome(t, tok))
	require.NoError(t, err)

	// the last taken class returns first
	e.requireBalance(t, alice, appA, ledger.Primary, 27)
	e.requireBalance(t, alice, appA, ledger.Secondary, 0)
	e.requireEscrow(t, alice, appA, appB, ledger.Secondary, 10)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 3)
	e.requireConsistent(t)
}

func TestDepositDispatchFailure(t *testing.T) {
	e := newTestEnv(t)
	e.mint(t, alice, appA, ledger.Primary, 100)

	_, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appC, Class: ledger.Primary, Amount: 40,
	})
	require.ErrorIs(t, err, inproc.ErrUnknownTarget)

	e.requireBalance(t, alice, appA, ledger.Primary, 100)
	e.requireEscrow(t, alice, appA, appC, ledger.Primary, 0)
	e.requireConsistent(t)
	require.Equal(t, []string{MintEvent, DepositEvent, WithdrawEvent}, e.eventNames(t))
}

func TestProtocolViolation(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(0))
	e.mint(t, alice, appA, ledger.Primary, 100)

	tok, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 40,
	})
	require.NoError(t, err)

	_, err = e.c.Resolve(e.ctx, tok, settlement.Pending())
	require.ErrorIs(t, err, common.ErrProtocolViolation)
	require.Equal(t, settlement.Aborted, tok.State())

	e.requireBalance(t, alice, appA, ledger.Primary, 60)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 40)

	_, err = e.c.Resolve(e.ctx, tok, settlement.SucceededUnused(40))
	require.ErrorIs(t, err, common.ErrAlreadyResolved)
	e.requireBalance(t, alice, appA, ledger.Primary, 60)
}

func TestWithdrawFromApplication(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(0))
	e.mint(t, alice, appA, ledger.Primary, 100)

	dep, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 40,
	})
	require.NoError(t, err)
	_, err = e.c.Resolve(e.ctx, dep, e.outcome(t, dep))
	require.NoError(t, err)

	_, err = e.c.WithdrawFromApplication(e.ctx, validInvocation(alice), WithdrawPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 41,
	})
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	_, err = e.c.WithdrawFromApplication(e.ctx, validInvocation(alice), WithdrawPrm{
		Scope: appA, Receiver: ledger.None, Class: ledger.Primary, Amount: 1,
	})
	require.ErrorIs(t, err, common.ErrInvalidScope)

	tok, err := e.c.WithdrawFromApplication(e.ctx, validInvocation(alice), WithdrawPrm{
		Scope: appA, Receiver: appB, Class: ledger.AnyClass, Amount: 10,
	})
	require.NoError(t, err)
	require.Equal(t, []ledger.ClassAmount{{Class: ledger.Primary, Amount: 10}}, tok.Parts)

	e.requireBalance(t, alice, appA, ledger.Primary, 70)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 30)

	// withdrawal is final whatever the application says
	r, err := e.c.Resolve(e.ctx, tok, settlement.Failed())
	require.NoError(t, err)
	require.Zero(t, r.Used)
	require.Zero(t, r.Refunded)

	e.requireBalance(t, alice, appA, ledger.Primary, 70)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 30)
	e.requireSupply(t, appA, ledger.Primary, 100)
	e.requireConsistent(t)
	require.Equal(t, []string{MintEvent, DepositEvent, WithdrawEvent}, e.eventNames(t))
}

type callRecorder struct {
	mtx   sync.Mutex
	calls []settlement.Call
}

func (r *callRecorder) handler(_ context.Context, c settlement.Call) ([]byte, error) {
	r.mtx.Lock()
	r.calls = append(r.calls, c)
	r.mtx.Unlock()
	return []byte(`"0"`), nil
}

func TestBurn(t *testing.T) {
	e := newTestEnv(t)

	var atB callRecorder
	e.net.Register(appA, unused(0))
	e.net.Register(appB, atB.handler)
	e.mint(t, alice, appA, ledger.Primary, 100)

	dep, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 30,
	})
	require.NoError(t, err)
	_, err = e.c.Resolve(e.ctx, dep, e.outcome(t, dep))
	require.NoError(t, err)

	_, err = e.c.Burn(e.ctx, validInvocation(alice), BurnPrm{Scope: appA, Class: ledger.Primary, Amount: 101})
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	tok, err := e.c.Burn(e.ctx, validInvocation(alice), BurnPrm{Scope: appA, Class: ledger.Primary, Amount: 90, Message: "fee"})
	require.NoError(t, err)

	// nothing changes until resolution
	e.requireBalance(t, alice, appA, ledger.Primary, 70)
	e.requireSupply(t, appA, ledger.Primary, 100)

	r, err := e.c.Resolve(e.ctx, tok, e.outcome(t, tok))
	require.NoError(t, err)
	require.EqualValues(t, 90, r.Burned)
	e.c.Wait()

	e.requireBalance(t, alice, appA, ledger.Primary, 0)
	e.requireEscrow(t, alice, appA, appB, ledger.Primary, 10)
	e.requireSupply(t, appA, ledger.Primary, 10)
	e.requireSupply(t, ledger.None, ledger.AnyClass, 10)
	e.requireConsistent(t)

	require.Eventually(t, func() bool {
		atB.mtx.Lock()
		defer atB.mtx.Unlock()
		return len(atB.calls) == 2
	}, time.Second, 10*time.Millisecond)
	// onWithdraw result is not tracked
	require.Zero(t, e.net.Pending())

	atB.mtx.Lock()
	defer atB.mtx.Unlock()
	require.Equal(t, settlement.MethodOnDeposit, atB.calls[0].Method)
	require.Equal(t, settlement.Call{
		Method:  settlement.MethodOnWithdraw,
		Sender:  alice,
		Scope:   appA,
		Class:   ledger.Primary,
		Amount:  20,
		Message: "fee",
	}, atB.calls[1])

	require.Equal(t, []string{MintEvent, DepositEvent, BurnEvent}, e.eventNames(t))
}

func TestBurnCappedAndUnused(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appA, unused(0))
	e.net.Register(appB, unused(0))
	e.mint(t, alice, appA, ledger.Primary, 50)

	tok, err := e.c.Burn(e.ctx, validInvocation(alice), BurnPrm{Scope: appA, Amount: 50})
	require.NoError(t, err)

	// value left the account while the burn was in flight
	dep, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
		Scope: appA, Receiver: appB, Amount: 20,
	})
	require.NoError(t, err)
	_, err = e.c.Resolve(e.ctx, dep, e.outcome(t, dep))
	require.NoError(t, err)
	r, err := e.c.Resolve(e.ctx, tok, e.outcome(t, tok))
	require.NoError(t, err)
	require.EqualValues(t, 50, r.Burned)
	e.c.Wait()
	e.requireSupply(t, appA, ledger.AnyClass, 0)

	e.mint(t, alice, appA, ledger.Primary, 5)
	tok, err = e.c.Burn(e.ctx, validInvocation(alice), BurnPrm{Scope: appA, Amount: 5})
	require.NoError(t, err)
	r, err = e.c.Resolve(e.ctx, tok, settlement.SucceededUnused(5))
	require.NoError(t, err)
	require.Zero(t, r.Burned)
	e.requireBalance(t, alice, appA, ledger.Primary, 5)
	e.requireConsistent(t)
}

func TestInvocationChecks(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(0))
	e.mint(t, alice, appA, ledger.Primary, 10)

	prm := DepositPrm{Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 1}

	inv := validInvocation(alice)
	inv.Budget = DefaultCallBudget + DefaultResolveBudget
	_, err := e.c.DepositToApplication(e.ctx, inv, prm)
	require.ErrorIs(t, err, common.ErrInsufficientBudget)

	inv = validInvocation(alice)
	inv.Attached = 0
	_, err = e.c.DepositToApplication(e.ctx, inv, prm)
	require.ErrorIs(t, err, common.ErrInsufficientDeposit)

	_, err = e.c.DepositToApplication(e.ctx, validInvocation(bob), prm)
	require.ErrorIs(t, err, common.ErrNotRegistered)

	_, err = e.c.Burn(e.ctx, validInvocation(bob), BurnPrm{Scope: appA, Amount: 1})
	require.ErrorIs(t, err, common.ErrNotRegistered)

	_, err = e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{Scope: appA, Receiver: appB, Amount: 0})
	require.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = e.c.Burn(e.ctx, validInvocation(alice), BurnPrm{Scope: ledger.None, Amount: 1})
	require.ErrorIs(t, err, common.ErrInvalidScope)

	e.requireBalance(t, alice, appA, ledger.Primary, 10)
	require.Equal(t, []string{MintEvent}, e.eventNames(t))
	e.requireConsistent(t)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, func(prm *Prm) {
		prm.Limiter = ratelimit.New(0.001, 2, 0)
	})
	e.net.Register(appB, unused(0))
	e.mint(t, alice, appA, ledger.Primary, 10)

	prm := DepositPrm{Scope: appA, Receiver: appB, Class: ledger.Primary, Amount: 1}

	for i := 0; i < 2; i++ {
		_, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), prm)
		require.NoError(t, err)
	}
	_, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), prm)
	require.ErrorIs(t, err, common.ErrRateLimited)

	// other callers are not affected
	_, err = e.c.DepositToApplication(e.ctx, validInvocation(bob), prm)
	require.ErrorIs(t, err, common.ErrNotRegistered)

	e.requireBalance(t, alice, appA, ledger.Primary, 8)

	e.mint(t, alice, appA, ledger.Primary, 1)
	err = e.c.Mint(validInvocation(appA), MintPrm{Scope: appA, Account: alice, Class: ledger.Primary, Amount: 1})
	require.ErrorIs(t, err, common.ErrRateLimited)
	require.ErrorContains(t, err, address.Uint160ToString(appA))
}

func TestConcurrentSettlements(t *testing.T) {
	e := newTestEnv(t)
	e.net.Register(appB, unused(2))
	e.net.Register(appC, refuse)
	e.mint(t, alice, appA, ledger.Primary, 100)

	const n = 10

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)

	for i := 0; i < 2*n; i++ {
		receiver := appB
		if i%2 == 1 {
			receiver = appC
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			tok, err := e.c.DepositToApplication(e.ctx, validInvocation(alice), DepositPrm{
				Scope: appA, Receiver: receiver, Class: ledger.Primary, Amount: 5,
			})
			if err != nil {
				errs <- err
				return
			}
			o, err := e.net.Wait(e.ctx, tok.Handle)
			if err != nil {
				errs <- err
				return
			}
			_, err = e.c.Resolve(e.ctx, tok, o)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	e.requireEscrow(t, alice, appA, appB, ledger.Primary, n*3)
	e.requireEscrow(t, alice, appA, appC, ledger.Primary, 0)
	e.requireBalance(t, alice, appA, ledger.Primary, 100-n*3)
	e.requireConsistent(t)
}
