// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrapped implements the fixed-unit representation of the elastic
// ledger. One wrapped unit is worth index face units, so balances do not move
// when the elastic ledger rebases.
package wrapped

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

var (
	ErrIndexNotSet  = errors.New("index not set")
	ErrMigrated     = errors.New("already migrated")
	ErrInvalidIndex = errors.New("index source mismatch")

	// unit is 10^18, the wrapped ledger's precision.
	unit = uint256.NewInt(1_000_000_000_000_000_000)

	keyApproved = []byte("approved")
	keyMigrated = []byte("migrated")
)

// IndexSource exposes the elastic index.
type IndexSource interface {
	Address() ids.ShortID
	Index() (*uint256.Int, error)
}

// Ledger is the wrapped ledger. Transfers and allowances are those of a plain
// ledger; only the approved minter creates or destroys units.
type Ledger struct {
	*ledger.Ledger

	index IndexSource
	store *state.Store
	db    database.Database
	log   log.Logger
}

func New(md ledger.Metadata, index IndexSource, store *state.Store, logger log.Logger) *Ledger {
	return &Ledger{
		Ledger: ledger.New(md, store, logger),
		index:  index,
		store:  store,
		db:     store.Scope(state.Key([]byte("wrapped:"), md.Address[:])),
		log:    logger,
	}
}

// Genesis makes [deployer] the approved identity until Migrate runs.
func (l *Ledger) Genesis(deployer ids.ShortID) error {
	return l.store.Atomic(func() error {
		if deployer == ids.ShortEmpty {
			return ledger.ErrInvalidAddress
		}
		return state.PutShortID(l.db, keyApproved, deployer)
	})
}

// Approved returns the identity allowed to mint and burn.
func (l *Ledger) Approved() (ids.ShortID, error) {
	return state.GetShortID(l.db, keyApproved)
}

// Migrate hands minting to [staking]. It runs once, by the deployer.
func (l *Ledger) Migrate(caller, staking, elastic ids.ShortID) error {
	return l.store.Atomic(func() error {
		migrated, err := state.GetBool(l.db, keyMigrated)
		if err != nil {
			return err
		}
		if migrated {
			return ErrMigrated
		}
		if err := l.onlyApproved(caller); err != nil {
			return err
		}
		if staking == ids.ShortEmpty {
			return ledger.ErrInvalidAddress
		}
		if elastic != l.index.Address() {
			return fmt.Errorf("%w: %s", ErrInvalidIndex, elastic)
		}
		if err := state.PutShortID(l.db, keyApproved, staking); err != nil {
			return err
		}
		if err := state.PutBool(l.db, keyMigrated, true); err != nil {
			return err
		}
		return l.store.Emit(l.Address(), "Migrated",
			"staking", staking.String(),
			"elastic", elastic.String(),
		)
	})
}

func (l *Ledger) onlyApproved(caller ids.ShortID) error {
	approved, err := l.Approved()
	if err != nil {
		return err
	}
	if approved == ids.ShortEmpty || caller != approved {
		return fmt.Errorf("%w: %s is not the approved minter", authority.ErrUnauthorized, caller)
	}
	return nil
}

// Mint creates [amount] wrapped units for [to].
func (l *Ledger) Mint(caller, to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		if err := l.onlyApproved(caller); err != nil {
			return err
		}
		return l.Ledger.Mint(to, amount)
	})
}

// Burn destroys [amount] wrapped units held by [from].
func (l *Ledger) Burn(caller, from ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		if err := l.onlyApproved(caller); err != nil {
			return err
		}
		return l.Ledger.Burn(from, amount)
	})
}

func (l *Ledger) currentIndex() (*uint256.Int, error) {
	index, err := l.index.Index()
	if err != nil {
		return nil, err
	}
	if index.IsZero() {
		return nil, ErrIndexNotSet
	}
	return index, nil
}

// BalanceTo converts a face amount into wrapped units at the current index.
func (l *Ledger) BalanceTo(amount *uint256.Int) (*uint256.Int, error) {
	index, err := l.currentIndex()
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, unit, index)
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return out, nil
}

// BalanceFrom converts wrapped units into a face amount at the current index.
func (l *Ledger) BalanceFrom(amount *uint256.Int) (*uint256.Int, error) {
	index, err := l.currentIndex()
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, index, unit)
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return out, nil
}
