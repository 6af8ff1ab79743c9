// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package distributor

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/abachi/utils/units"
	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

var errMint = errors.New("mint failed")

// baseMinter mints straight from the base ledger as the vault.
type baseMinter struct {
	base  *ledger.Base
	vault ids.ShortID
	err   error
}

func (m *baseMinter) Mint(_, recipient ids.ShortID, amount *uint256.Int) error {
	if m.err != nil {
		return m.err
	}
	return m.base.Mint(m.vault, recipient, amount)
}

type testEnv struct {
	store       *state.Store
	base        *ledger.Base
	minter      *baseMinter
	distributor *Distributor

	governor ids.ShortID
	guardian ids.ShortID
	staking  ids.ShortID
}

func newTestEnv(t *testing.T) *testEnv {
	require := require.New(t)

	store := state.New(memdb.New(), log.NewNoOpLogger())
	env := &testEnv{
		store:    store,
		governor: ids.GenerateTestShortID(),
		guardian: ids.GenerateTestShortID(),
		staking:  ids.GenerateTestShortID(),
	}
	vault := ids.GenerateTestShortID()
	auth, err := authority.New(ids.GenerateTestShortID(), store, log.NewNoOpLogger(), env.governor, env.guardian, env.governor, vault)
	require.NoError(err)

	env.base = ledger.NewBase(
		ledger.Metadata{Address: ids.GenerateTestShortID(), Symbol: "ABI", Decimals: units.AbiDecimals},
		uint256.NewInt(units.MegaAbi),
		auth,
		store,
		log.NewNoOpLogger(),
	)
	require.NoError(env.base.Mint(vault, ids.GenerateTestShortID(), uint256.NewInt(1000*units.Abi)))
	env.minter = &baseMinter{base: env.base, vault: vault}

	env.distributor, err = New(Config{
		Address:   ids.GenerateTestShortID(),
		Staking:   env.staking,
		Supply:    env.base,
		Minter:    env.minter,
		Authority: auth,
	}, store, log.NewNoOpLogger())
	require.NoError(err)
	return env
}

func (env *testEnv) rate(t *testing.T, index int) uint64 {
	infos, err := env.distributor.Recipients()
	require.NoError(t, err)
	return infos[index].Rate
}

func TestNewValidates(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	_, err := New(Config{Address: ids.GenerateTestShortID()}, env.store, log.NewNoOpLogger())
	require.ErrorIs(err, ErrInvalidAddress)

	_, err = New(Config{Address: ids.GenerateTestShortID(), Staking: env.staking}, env.store, log.NewNoOpLogger())
	require.Error(err)
}

func TestAddRecipient(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	recipient := ids.GenerateTestShortID()

	require.ErrorIs(env.distributor.AddRecipient(env.guardian, recipient, 1000), authority.ErrUnauthorized)
	require.ErrorIs(env.distributor.AddRecipient(env.governor, ids.ShortEmpty, 1000), ErrInvalidRecipient)
	require.ErrorIs(env.distributor.AddRecipient(env.governor, recipient, RateDenominator+1), ErrRateTooHigh)
	require.NoError(env.distributor.AddRecipient(env.governor, recipient, 1000))

	infos, err := env.distributor.Recipients()
	require.NoError(err)
	require.Equal([]Info{{Recipient: recipient, Rate: 1000}}, infos)
}

func TestDistributeOnlyStaking(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.distributor.AddRecipient(env.governor, env.staking, 1000))

	err := env.distributor.Distribute(env.governor)
	require.ErrorIs(err, ErrOnlyStaking)

	supply, err := env.base.TotalSupply()
	require.NoError(err)
	require.Equal(1000*units.Abi, supply.Uint64())
}

func TestDistributeMintsRewards(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	recipient := ids.GenerateTestShortID()
	require.NoError(env.distributor.AddRecipient(env.governor, recipient, 1000))

	next, err := env.distributor.NextRewardFor(recipient)
	require.NoError(err)
	require.Equal(units.Abi, next.Uint64())

	require.NoError(env.distributor.Distribute(env.staking))
	balance, err := env.base.BalanceOf(recipient)
	require.NoError(err)
	require.Equal(units.Abi, balance.Uint64())

	// rewards compound on the grown supply
	next, err = env.distributor.NextRewardFor(recipient)
	require.NoError(err)
	require.Equal(units.Abi+units.MilliAbi, next.Uint64())

	missing, err := env.distributor.NextRewardFor(ids.GenerateTestShortID())
	require.NoError(err)
	require.True(missing.IsZero())
}

func TestAdjustmentReachesTarget(t *testing.T) {
	tests := []struct {
		name   string
		add    bool
		rate   uint64
		target uint64
		rates  []uint64
	}{
		{
			name:   "increase",
			add:    true,
			rate:   100,
			target: 4200,
			rates:  []uint64{4100, 4200, 4200},
		},
		{
			name:   "decrease past target",
			add:    false,
			rate:   100,
			target: 3950,
			rates:  []uint64{3950, 3950},
		},
		{
			name:   "decrease to zero",
			add:    false,
			rate:   4000,
			target: 0,
			rates:  []uint64{0, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			require.NoError(env.distributor.AddRecipient(env.governor, ids.GenerateTestShortID(), 4000))
			require.NoError(env.distributor.SetAdjustment(env.governor, 0, test.add, test.rate, test.target))

			for _, want := range test.rates {
				require.NoError(env.distributor.Distribute(env.staking))
				require.Equal(want, env.rate(t, 0))
			}
			adj, err := env.distributor.Adjustment(0)
			require.NoError(err)
			require.Zero(adj.Rate)
		})
	}
}

func TestGuardianAdjustmentLimit(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.distributor.AddRecipient(env.governor, ids.GenerateTestShortID(), 4000))

	require.ErrorIs(env.distributor.SetAdjustment(env.guardian, 0, true, 101, 5000), ErrAdjustmentLimit)
	require.NoError(env.distributor.SetAdjustment(env.guardian, 0, true, 100, 5000))
	require.NoError(env.distributor.SetAdjustment(env.governor, 0, true, 1000, 5000))
	require.ErrorIs(env.distributor.SetAdjustment(env.governor, 0, false, 4001, 0), ErrDecreaseTooLarge)
	require.ErrorIs(env.distributor.SetAdjustment(ids.GenerateTestShortID(), 0, true, 1, 5000), authority.ErrUnauthorized)
	require.ErrorIs(env.distributor.SetAdjustment(env.governor, 1, true, 1, 5000), ErrRecipientNotFound)

	adj, err := env.distributor.Adjustment(0)
	require.NoError(err)
	require.Equal(Adjustment{Add: true, Rate: 1000, Target: 5000}, adj)
}

func TestRemoveRecipient(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	first := ids.GenerateTestShortID()
	second := ids.GenerateTestShortID()
	require.NoError(env.distributor.AddRecipient(env.governor, first, 1000))
	require.NoError(env.distributor.AddRecipient(env.governor, second, 1000))

	require.NoError(env.distributor.RemoveRecipient(env.guardian, 0))
	require.ErrorIs(env.distributor.RemoveRecipient(env.guardian, 0), ErrInvalidRecipient)
	require.ErrorIs(env.distributor.RemoveRecipient(env.guardian, 2), ErrRecipientNotFound)
	require.ErrorIs(env.distributor.SetAdjustment(env.governor, 0, true, 1, 10), ErrInvalidRecipient)

	infos, err := env.distributor.Recipients()
	require.NoError(err)
	require.Equal([]Info{{}, {Recipient: second, Rate: 1000}}, infos)

	require.NoError(env.distributor.Distribute(env.staking))
	balance, err := env.base.BalanceOf(first)
	require.NoError(err)
	require.True(balance.IsZero())
	balance, err = env.base.BalanceOf(second)
	require.NoError(err)
	require.Equal(units.Abi, balance.Uint64())
}

func TestMintFailureRollsBack(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	first := ids.GenerateTestShortID()
	require.NoError(env.distributor.AddRecipient(env.governor, first, 1000))
	require.NoError(env.distributor.SetAdjustment(env.governor, 0, true, 100, 2000))
	require.NoError(env.distributor.AddRecipient(env.governor, ids.GenerateTestShortID(), 1000))

	// fail only on the second recipient
	calls := 0
	failing := &countingMinter{next: env.minter, failAt: 2, calls: &calls}
	env.distributor.minter = failing

	err := env.distributor.Distribute(env.staking)
	require.ErrorIs(err, errMint)
	require.Equal(2, calls)

	balance, err := env.base.BalanceOf(first)
	require.NoError(err)
	require.True(balance.IsZero())
	require.Equal(uint64(1000), env.rate(t, 0))
}

type countingMinter struct {
	next   *baseMinter
	failAt int
	calls  *int
}

func (m *countingMinter) Mint(caller, recipient ids.ShortID, amount *uint256.Int) error {
	*m.calls++
	if *m.calls == m.failAt {
		return errMint
	}
	return m.next.Mint(caller, recipient, amount)
}
