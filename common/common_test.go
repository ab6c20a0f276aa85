package common

import (
	"math"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	v, err := Add(math.MaxUint64-1, 1)
	require.NoError(t, err)
	require.EqualValues(t, uint64(math.MaxUint64), v)

	_, err = Add(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrOverflow)

	v, err = Sub(10, 10)
	require.NoError(t, err)
	require.Zero(t, v)

	_, err = Sub(9, 10)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCheckVersion(t *testing.T) {
	require.NoError(t, CheckVersion(Version))
	require.ErrorIs(t, CheckVersion(Version+1), ErrVersionMismatch)
	if PrevVersion > 0 {
		require.ErrorIs(t, CheckVersion(PrevVersion-1), ErrVersionMismatch)
	}
	require.Equal(t, "0.1.0", VersionString(1_000))
}

func TestUint64Storage(t *testing.T) {
	s := storage.NewMemCachedStore(storage.NewMemoryStore())

	v, ok, err := GetUint64(s, []byte{1})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, v)

	PutUint64(s, []byte{1}, 42)
	v, ok, err = GetUint64(s, []byte{1})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, v)

	s.Put([]byte{2}, []byte{1, 2, 3})
	_, _, err = GetUint64(s, []byte{2})
	require.Error(t, err)
}

func TestSerialized(t *testing.T) {
	s := storage.NewMemCachedStore(storage.NewMemoryStore())
	in := util.Uint160{1, 2, 3}

	require.NoError(t, SetSerialized(s, []byte("k"), &in))

	var out util.Uint160
	ok, err := GetSerialized(s, []byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	ok, err = GetSerialized(s, []byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWitness(t *testing.T) {
	a, b := util.Uint160{1}, util.Uint160{2}

	require.NoError(t, CheckWitness(a, a))
	require.ErrorIs(t, CheckWitness(a, b), ErrWitnessFailed)
	require.ErrorIs(t, CheckScopeWitness(util.Uint160{}, util.Uint160{}), ErrScopeWitnessFailed)

	require.NoError(t, CheckAttachedDeposit(1, 1))
	require.ErrorIs(t, CheckAttachedDeposit(0, 1), ErrInsufficientDeposit)

	require.NoError(t, CheckBudget(11, 10))
	require.ErrorIs(t, CheckBudget(10, 10), ErrInsufficientBudget)
}
