// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrapped

import (
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

type testIndex struct {
	addr  ids.ShortID
	index *uint256.Int
}

func (i *testIndex) Address() ids.ShortID { return i.addr }
func (i *testIndex) Index() (*uint256.Int, error) { return i.index, nil }

func newTestLedger(t *testing.T, index *testIndex) (*Ledger, ids.ShortID) {
	store := state.New(memdb.New(), log.NewNoOpLogger())
	l := New(
		ledger.Metadata{Address: ids.GenerateTestShortID(), Symbol: "gABI", Decimals: units.WrappedDecimals},
		index,
		store,
		log.NewNoOpLogger(),
	)
	deployer := ids.GenerateTestShortID()
	require.NoError(t, l.Genesis(deployer))
	return l, deployer
}

func TestConversionsFollowIndex(t *testing.T) {
	require := require.New(t)

	index := &testIndex{addr: ids.GenerateTestShortID()}
	l, _ := newTestLedger(t, index)

	_, err := l.BalanceTo(uint256.NewInt(1))
	require.ErrorIs(err, ErrIndexNotSet)

	index.index = uint256.NewInt(units.Abi)
	to, err := l.BalanceTo(uint256.NewInt(units.Abi))
	require.NoError(err)
	require.Equal("1000000000000000000", to.Dec())

	// the index doubles, so one wrapped unit is worth twice the face value
	index.index = uint256.NewInt(2 * units.Abi)
	from, err := l.BalanceFrom(to)
	require.NoError(err)
	require.Equal(2*units.Abi, from.Uint64())

	half, err := l.BalanceTo(uint256.NewInt(units.Abi))
	require.NoError(err)
	require.Equal("500000000000000000", half.Dec())
}

func TestMintRequiresApproved(t *testing.T) {
	require := require.New(t)

	index := &testIndex{addr: ids.GenerateTestShortID(), index: uint256.NewInt(units.Abi)}
	l, deployer := newTestLedger(t, index)
	staking := ids.GenerateTestShortID()
	alice := ids.GenerateTestShortID()

	require.ErrorIs(l.Mint(staking, alice, uint256.NewInt(1)), authority.ErrUnauthorized)

	require.ErrorIs(l.Migrate(staking, staking, index.addr), authority.ErrUnauthorized)
	require.ErrorIs(l.Migrate(deployer, staking, ids.GenerateTestShortID()), ErrInvalidIndex)
	require.NoError(l.Migrate(deployer, staking, index.addr))
	require.ErrorIs(l.Migrate(staking, alice, index.addr), ErrMigrated)

	approved, err := l.Approved()
	require.NoError(err)
	require.Equal(staking, approved)

	require.ErrorIs(l.Mint(deployer, alice, uint256.NewInt(1)), authority.ErrUnauthorized)
	require.NoError(l.Mint(staking, alice, uint256.NewInt(10)))
	require.ErrorIs(l.Burn(alice, alice, uint256.NewInt(1)), authority.ErrUnauthorized)
	require.NoError(l.Burn(staking, alice, uint256.NewInt(4)))

	balance, err := l.BalanceOf(alice)
	require.NoError(err)
	require.Equal(uint64(6), balance.Uint64())

	// ordinary transfers need no approval
	bob := ids.GenerateTestShortID()
	require.NoError(l.Transfer(alice, bob, uint256.NewInt(6)))
	supply, err := l.TotalSupply()
	require.NoError(err)
	require.Equal(uint64(6), supply.Uint64())
}
