package ledger

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/common"
)

// Class is a provenance tag of the value.
type Class byte

const (
	// AnyClass means the class is not specified. It selects all classes in
	// queries and applies draw-down order in debits.
	AnyClass Class = iota
	// Primary is value issued by an application for use inside applications.
	Primary
	// Secondary is value backed by an external payment. It is drained first.
	Secondary
)

// None is the zero hash standing for "all scopes" or "all counterparties".
var None = util.Uint160{}

// drawDownOrder is the order classes are drained in when no class is given.
var drawDownOrder = []Class{Secondary, Primary}

// Classes returns all concrete classes in draw-down order.
func Classes() []Class {
	return []Class{Secondary, Primary}
}

func (c Class) order() []Class {
	if c == AnyClass {
		return drawDownOrder
	}
	return []Class{c}
}

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case AnyClass:
		return "any"
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("class(%d)", byte(c))
	}
}

// ParseClass parses textual class representation. Empty string is AnyClass.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return AnyClass, nil
	case "primary":
		return Primary, nil
	case "secondary":
		return Secondary, nil
	default:
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidClass, s)
	}
}

func checkClass(c Class, allowAny bool) error {
	switch c {
	case Primary, Secondary:
		return nil
	case AnyClass:
		if allowAny {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidClass, c)
}

func checkScope(scope util.Uint160) error {
	if scope.Equals(None) {
		return fmt.Errorf("%w: none scope can not be a target", common.ErrInvalidScope)
	}
	return nil
}

// ClassAmount is an amount taken from or returned to a single class.
type ClassAmount struct {
	Class  Class
	Amount uint64
}

// Consumed is an amount taken from a single escrow entry.
type Consumed struct {
	Counterparty util.Uint160
	Class        Class
	Amount       uint64
}

// Residual is a non-zero amount found in the account on unregistration.
type Residual struct {
	Scope  util.Uint160
	Class  Class
	Amount uint64
}

// Sum returns the total of the parts.
func Sum(parts []ClassAmount) uint64 {
	var s uint64
	for i := range parts {
		s += parts[i].Amount
	}
	return s
}

// draw splits amount across classes in draw-down order, taking from each
// class no more than get returns for it.
func draw(c Class, amount uint64, get func(Class) (uint64, error)) ([]ClassAmount, error) {
	var (
		parts []ClassAmount
		rest  = amount
	)
	for _, cl := range c.order() {
		if rest == 0 {
			break
		}
		bal, err := get(cl)
		if err != nil {
			return nil, err
		}
		take := min(bal, rest)
		if take == 0 {
			continue
		}
		parts = append(parts, ClassAmount{Class: cl, Amount: take})
		rest -= take
	}
	if rest != 0 {
		return nil, fmt.Errorf("%w: %d of %d is missing", common.ErrInsufficientBalance, rest, amount)
	}
	return parts, nil
}
