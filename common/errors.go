package common

import "errors"

var (
	// ErrNotRegistered is returned when an operation references an account
	// that has not been registered in the ledger.
	ErrNotRegistered = errors.New("account is not registered")
	// ErrAlreadyRegistered is returned by registration of an existing account.
	ErrAlreadyRegistered = errors.New("account is already registered")
	// ErrNonZeroBalance is returned by non-forced unregistration of an account
	// which still holds available or escrowed value.
	ErrNonZeroBalance = errors.New("account has non-zero balance")
	// ErrInsufficientBalance is returned when a debit exceeds the balance
	// it is taken from.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrOverflow is returned when a credit exceeds the amount range.
	ErrOverflow = errors.New("amount overflow")
	// ErrInvalidScope is returned when the None scope is used as a concrete
	// target of a mutation.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidClass is returned for an unknown value class.
	ErrInvalidClass = errors.New("invalid value class")
	// ErrInvalidAmount is returned for zero amounts in mutating calls.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBudget is returned when the execution budget attached to
	// a call can not cover the remote call and its resolution.
	ErrInsufficientBudget = errors.New("insufficient execution budget")
	// ErrInsufficientDeposit is returned when the attached proof-of-intent
	// deposit is below the configured minimum.
	ErrInsufficientDeposit = errors.New("insufficient attached deposit")
	// ErrProtocolViolation is returned when a settlement is resolved before
	// the remote call has produced a result.
	ErrProtocolViolation = errors.New("settlement protocol violation")
	// ErrAlreadyResolved is returned on repeated resolution of a settlement.
	ErrAlreadyResolved = errors.New("settlement is already resolved")
	// ErrRateLimited is returned when the caller exceeds its request rate.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvariantViolated is returned by consistency checks of the stored
	// ledger.
	ErrInvariantViolated = errors.New("ledger invariant violated")
)
