// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements fungible balances with allowances, the capped
// base token, and the registry used to look tokens up by address.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/state"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAllowanceExceeded   = errors.New("allowance exceeded")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrOverflow            = errors.New("amount overflow")

	prefixBalance   = []byte("balance:")
	prefixAllowance = []byte("allowance:")
	keySupply       = []byte("supply")
)

// Token is the view of a fungible ledger used by the staking engine and the
// treasury.
type Token interface {
	Address() ids.ShortID
	Symbol() string
	Decimals() uint8
	TotalSupply() (*uint256.Int, error)
	BalanceOf(account ids.ShortID) (*uint256.Int, error)
	Transfer(caller, to ids.ShortID, amount *uint256.Int) error
	TransferFrom(caller, from, to ids.ShortID, amount *uint256.Int) error
}

// Metadata describes a ledger.
type Metadata struct {
	Address  ids.ShortID `json:"address"`
	Name     string      `json:"name"`
	Symbol   string      `json:"symbol"`
	Decimals uint8       `json:"decimals"`
}

var _ Token = (*Ledger)(nil)

// Ledger keeps balances, allowances and total supply of one token.
type Ledger struct {
	md Metadata

	store *state.Store
	db    database.Database
	log   log.Logger
}

// New returns the ledger described by [md], persisted in [store].
func New(md Metadata, store *state.Store, logger log.Logger) *Ledger {
	return &Ledger{
		md:    md,
		store: store,
		db:    store.Scope(state.Key([]byte("ledger:"), md.Address[:])),
		log:   logger,
	}
}

// Info returns the ledger's metadata.
func (l *Ledger) Info() Metadata { return l.md }

func (l *Ledger) Address() ids.ShortID { return l.md.Address }
func (l *Ledger) Symbol() string { return l.md.Symbol }
func (l *Ledger) Decimals() uint8 { return l.md.Decimals }

func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return state.GetUint256(l.db, keySupply)
}

func (l *Ledger) BalanceOf(account ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(l.db, state.Key(prefixBalance, account[:]))
}

func allowanceKey(owner, spender ids.ShortID) []byte {
	return state.Key(prefixAllowance, owner[:], spender[:])
}

func (l *Ledger) Allowance(owner, spender ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(l.db, allowanceKey(owner, spender))
}

// Approve sets the amount [spender] may move out of [caller]'s balance.
func (l *Ledger) Approve(caller, spender ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		return l.approve(caller, spender, amount)
	})
}

// IncreaseAllowance adds [amount] to the allowance of [spender].
func (l *Ledger) IncreaseAllowance(caller, spender ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		current, err := l.Allowance(caller, spender)
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(current, amount)
		if overflow {
			return ErrOverflow
		}
		return l.approve(caller, spender, next)
	})
}

// DecreaseAllowance subtracts [amount] from the allowance of [spender],
// stopping at zero.
func (l *Ledger) DecreaseAllowance(caller, spender ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		current, err := l.Allowance(caller, spender)
		if err != nil {
			return err
		}
		next := new(uint256.Int)
		if current.Gt(amount) {
			next.Sub(current, amount)
		}
		return l.approve(caller, spender, next)
	})
}

func (l *Ledger) approve(owner, spender ids.ShortID, amount *uint256.Int) error {
	if spender == ids.ShortEmpty {
		return ErrInvalidAddress
	}
	if err := state.PutUint256(l.db, allowanceKey(owner, spender), amount); err != nil {
		return err
	}
	return l.store.Emit(l.md.Address, "Approval",
		"owner", owner.String(),
		"spender", spender.String(),
		"value", amount.Dec(),
	)
}

// SpendAllowance consumes [amount] of the allowance [owner] granted [spender].
func (l *Ledger) SpendAllowance(owner, spender ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		current, err := l.Allowance(owner, spender)
		if err != nil {
			return err
		}
		if current.Lt(amount) {
			return fmt.Errorf("%w: %s < %s", ErrAllowanceExceeded, current.Dec(), amount.Dec())
		}
		return state.PutUint256(l.db, allowanceKey(owner, spender), new(uint256.Int).Sub(current, amount))
	})
}

// Transfer moves [amount] from [caller] to [to].
func (l *Ledger) Transfer(caller, to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		return l.move(caller, to, amount)
	})
}

// TransferFrom moves [amount] from [from] to [to] using [caller]'s allowance.
func (l *Ledger) TransferFrom(caller, from, to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		if err := l.SpendAllowance(from, caller, amount); err != nil {
			return err
		}
		return l.move(from, to, amount)
	})
}

func (l *Ledger) move(from, to ids.ShortID, amount *uint256.Int) error {
	if to == ids.ShortEmpty {
		return ErrInvalidAddress
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBalance.Dec(), amount.Dec())
	}
	if err := state.PutUint256(l.db, state.Key(prefixBalance, from[:]), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if _, overflow := toBalance.AddOverflow(toBalance, amount); overflow {
		return ErrOverflow
	}
	if err := state.PutUint256(l.db, state.Key(prefixBalance, to[:]), toBalance); err != nil {
		return err
	}
	return l.store.Emit(l.md.Address, "Transfer",
		"from", from.String(),
		"to", to.String(),
		"value", amount.Dec(),
	)
}

// Mint credits [amount] to [to] without any authorization check. Callers gate
// it.
func (l *Ledger) Mint(to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		if to == ids.ShortEmpty {
			return ErrInvalidAddress
		}
		supply, err := l.TotalSupply()
		if err != nil {
			return err
		}
		if _, overflow := supply.AddOverflow(supply, amount); overflow {
			return ErrOverflow
		}
		balance, err := l.BalanceOf(to)
		if err != nil {
			return err
		}
		balance.Add(balance, amount)

		if err := state.PutUint256(l.db, keySupply, supply); err != nil {
			return err
		}
		if err := state.PutUint256(l.db, state.Key(prefixBalance, to[:]), balance); err != nil {
			return err
		}
		return l.store.Emit(l.md.Address, "Transfer",
			"from", ids.ShortEmpty.String(),
			"to", to.String(),
			"value", amount.Dec(),
		)
	})
}

// Burn destroys [amount] held by [from].
func (l *Ledger) Burn(from ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		balance, err := l.BalanceOf(from)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return fmt.Errorf("%w: burn of %s exceeds %s", ErrInsufficientBalance, amount.Dec(), balance.Dec())
		}
		supply, err := l.TotalSupply()
		if err != nil {
			return err
		}
		if err := state.PutUint256(l.db, state.Key(prefixBalance, from[:]), balance.Sub(balance, amount)); err != nil {
			return err
		}
		if err := state.PutUint256(l.db, keySupply, supply.Sub(supply, amount)); err != nil {
			return err
		}
		return l.store.Emit(l.md.Address, "Transfer",
			"from", from.String(),
			"to", ids.ShortEmpty.String(),
			"value", amount.Dec(),
		)
	})
}

// BurnFrom destroys [amount] of [holder]'s balance using [caller]'s allowance.
func (l *Ledger) BurnFrom(caller, holder ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		if err := l.SpendAllowance(holder, caller, amount); err != nil {
			return err
		}
		return l.Burn(holder, amount)
	})
}
