// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/abachi/utils/units"
	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

type testEnv struct {
	store *state.Store
	base  *Base
	vault ids.ShortID
	gov   ids.ShortID
}

func newTestEnv(t *testing.T) *testEnv {
	store := state.New(memdb.New(), log.NewNoOpLogger())
	gov := ids.GenerateTestShortID()
	vault := ids.GenerateTestShortID()
	auth, err := authority.New(ids.GenerateTestShortID(), store, log.NewNoOpLogger(), gov, gov, gov, vault)
	require.NoError(t, err)

	base := NewBase(
		Metadata{Address: ids.GenerateTestShortID(), Name: "Abachi", Symbol: "ABI", Decimals: 9},
		uint256.NewInt(1_000_000*units.Abi),
		auth,
		store,
		log.NewNoOpLogger(),
	)
	return &testEnv{store: store, base: base, vault: vault, gov: gov}
}

func TestMintOnlyVault(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()

	err := env.base.Mint(env.gov, alice, uint256.NewInt(1))
	require.ErrorIs(err, authority.ErrUnauthorized)

	require.NoError(env.base.Mint(env.vault, alice, uint256.NewInt(1)))
	balance, err := env.base.BalanceOf(alice)
	require.NoError(err)
	require.Equal(uint64(1), balance.Uint64())
}

func TestSupplyCapBoundary(t *testing.T) {
	tests := []struct {
		name   string
		amount *uint256.Int
		err    error
	}{
		{
			name:   "below cap",
			amount: uint256.NewInt(1_000_000*units.Abi - 1),
		},
		{
			name:   "exactly cap",
			amount: uint256.NewInt(1_000_000 * units.Abi),
		},
		{
			name:   "cap plus one",
			amount: uint256.NewInt(1_000_000*units.Abi + 1),
			err:    ErrSupplyCapExceeded,
		},
		{
			name:   "overflowing amount",
			amount: new(uint256.Int).SetAllOne(),
			err:    ErrSupplyCapExceeded,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			to := ids.GenerateTestShortID()
			err := env.base.Mint(env.vault, to, test.amount)
			require.ErrorIs(err, test.err)

			supply, err := env.base.TotalSupply()
			require.NoError(err)
			if test.err != nil {
				require.True(supply.IsZero())
			} else {
				require.Equal(test.amount, supply)
			}
		})
	}
}

func TestSupplyCapAcrossMints(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	to := ids.GenerateTestShortID()
	require.NoError(env.base.Mint(env.vault, to, uint256.NewInt(999_999*units.Abi)))
	require.NoError(env.base.Mint(env.vault, to, uint256.NewInt(units.Abi)))
	require.ErrorIs(env.base.Mint(env.vault, to, uint256.NewInt(1)), ErrSupplyCapExceeded)

	// burning frees room under the cap
	require.NoError(env.base.Burn(to, uint256.NewInt(1)))
	require.NoError(env.base.Mint(env.vault, to, uint256.NewInt(1)))
}

func TestBurnFromAllowance(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	holder := ids.GenerateTestShortID()
	spender := ids.GenerateTestShortID()
	require.NoError(env.base.Mint(env.vault, holder, uint256.NewInt(100)))

	err := env.base.BurnFrom(spender, holder, uint256.NewInt(10))
	require.ErrorIs(err, ErrAllowanceExceeded)

	require.NoError(env.base.Approve(holder, spender, uint256.NewInt(10)))
	require.ErrorIs(env.base.BurnFrom(spender, holder, uint256.NewInt(11)), ErrAllowanceExceeded)
	require.NoError(env.base.BurnFrom(spender, holder, uint256.NewInt(10)))

	balance, err := env.base.BalanceOf(holder)
	require.NoError(err)
	require.Equal(uint64(90), balance.Uint64())

	allowance, err := env.base.Allowance(holder, spender)
	require.NoError(err)
	require.True(allowance.IsZero())

	supply, err := env.base.TotalSupply()
	require.NoError(err)
	require.Equal(uint64(90), supply.Uint64())
}

func TestTransfers(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	carol := ids.GenerateTestShortID()
	require.NoError(env.base.Mint(env.vault, alice, uint256.NewInt(50)))

	require.ErrorIs(env.base.Transfer(alice, bob, uint256.NewInt(51)), ErrInsufficientBalance)
	require.ErrorIs(env.base.Transfer(alice, ids.ShortEmpty, uint256.NewInt(1)), ErrInvalidAddress)
	require.NoError(env.base.Transfer(alice, bob, uint256.NewInt(20)))
	require.NoError(env.base.Transfer(alice, alice, uint256.NewInt(30)))

	require.ErrorIs(env.base.TransferFrom(carol, bob, carol, uint256.NewInt(5)), ErrAllowanceExceeded)
	require.NoError(env.base.IncreaseAllowance(bob, carol, uint256.NewInt(3)))
	require.NoError(env.base.IncreaseAllowance(bob, carol, uint256.NewInt(2)))
	require.NoError(env.base.TransferFrom(carol, bob, carol, uint256.NewInt(5)))

	for addr, want := range map[ids.ShortID]uint64{alice: 30, bob: 15, carol: 5} {
		balance, err := env.base.BalanceOf(addr)
		require.NoError(err)
		require.Equal(want, balance.Uint64())
	}

	require.NoError(env.base.Approve(bob, carol, uint256.NewInt(4)))
	require.NoError(env.base.DecreaseAllowance(bob, carol, uint256.NewInt(10)))
	allowance, err := env.base.Allowance(bob, carol)
	require.NoError(err)
	require.True(allowance.IsZero())
}

func TestFailedTransferLeavesNoEvent(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	require.NoError(env.base.Mint(env.vault, alice, uint256.NewInt(1)))

	before, err := env.store.EventCount()
	require.NoError(err)
	require.Error(env.base.Transfer(alice, ids.GenerateTestShortID(), uint256.NewInt(2)))
	after, err := env.store.EventCount()
	require.NoError(err)
	require.Equal(before, after)
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	dai := New(Metadata{Address: ids.GenerateTestShortID(), Symbol: "DAI", Decimals: 18}, env.store, log.NewNoOpLogger())

	r := NewRegistry()
	require.NoError(r.Register(env.base))
	require.NoError(r.Register(dai))
	require.Error(r.Register(dai))

	token, err := r.Get(dai.Address())
	require.NoError(err)
	require.Equal(uint8(18), token.Decimals())

	_, err = r.Get(ids.GenerateTestShortID())
	require.ErrorIs(err, ErrUnknownToken)
	require.Len(r.Addresses(), 2)
}
