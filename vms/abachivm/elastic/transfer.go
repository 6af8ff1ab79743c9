// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package elastic

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

func allowanceKey(owner, spender ids.ShortID) []byte {
	return state.Key(prefixAllowance, owner[:], spender[:])
}

// Allowance is kept in face units and does not follow rebases.
func (l *Ledger) Allowance(owner, spender ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(l.db, allowanceKey(owner, spender))
}

func (l *Ledger) Approve(caller, spender ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		return l.approve(caller, spender, amount)
	})
}

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

// DecreaseAllowance stops at zero.
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

// Transfer moves [amount] face value from [caller] to [to].
func (l *Ledger) Transfer(caller, to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		return l.move(caller, to, amount)
	})
}

// TransferFrom moves [amount] from [from] to [to] using [caller]'s allowance.
func (l *Ledger) TransferFrom(caller, from, to ids.ShortID, amount *uint256.Int) error {
	return l.store.Atomic(func() error {
		current, err := l.Allowance(from, caller)
		if err != nil {
			return err
		}
		if current.Lt(amount) {
			return fmt.Errorf("%w: %s < %s", ErrAllowanceExceeded, current.Dec(), amount.Dec())
		}
		if err := state.PutUint256(l.db, allowanceKey(from, caller), new(uint256.Int).Sub(current, amount)); err != nil {
			return err
		}
		return l.move(from, to, amount)
	})
}

func (l *Ledger) move(from, to ids.ShortID, amount *uint256.Int) error {
	if to == ids.ShortEmpty {
		return ErrInvalidAddress
	}
	gonValue, err := l.GonsForBalance(amount)
	if err != nil {
		return err
	}
	fromGons, err := l.gonsOf(from)
	if err != nil {
		return err
	}
	if fromGons.Lt(gonValue) {
		return fmt.Errorf("%w: %s cannot send %s", ErrInsufficientBalance, from, amount.Dec())
	}
	if err := state.PutUint256(l.db, state.Key(prefixGons, from[:]), fromGons.Sub(fromGons, gonValue)); err != nil {
		return err
	}
	toGons, err := l.gonsOf(to)
	if err != nil {
		return err
	}
	if _, overflow := toGons.AddOverflow(toGons, gonValue); overflow {
		return ErrOverflow
	}
	if err := state.PutUint256(l.db, state.Key(prefixGons, to[:]), toGons); err != nil {
		return err
	}

	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	debt, err := l.DebtBalances(from)
	if err != nil {
		return err
	}
	if balance.Lt(debt) {
		return fmt.Errorf("%w: %s would hold %s against debt %s", ErrDebtLocked, from, balance.Dec(), debt.Dec())
	}
	return l.store.Emit(l.md.Address, "Transfer",
		"from", from.String(),
		"to", to.String(),
		"value", amount.Dec(),
	)
}

// DebtBalances returns the face amount [account] has borrowed against.
func (l *Ledger) DebtBalances(account ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(l.db, state.Key(prefixDebt, account[:]))
}

// ChangeDebt raises or lowers the debt recorded against [debtor]. Only the
// treasury may call it.
func (l *Ledger) ChangeDebt(caller, debtor ids.ShortID, amount *uint256.Int, add bool) error {
	return l.store.Atomic(func() error {
		treasury, err := l.Treasury()
		if err != nil {
			return err
		}
		if treasury == ids.ShortEmpty || caller != treasury {
			return fmt.Errorf("%w: change debt by %s", authority.ErrUnauthorized, caller)
		}
		debt, err := l.DebtBalances(debtor)
		if err != nil {
			return err
		}
		if add {
			next, overflow := new(uint256.Int).AddOverflow(debt, amount)
			if overflow {
				return ErrOverflow
			}
			balance, err := l.BalanceOf(debtor)
			if err != nil {
				return err
			}
			if next.Gt(balance) {
				return fmt.Errorf("%w: debt %s over balance %s", ErrInsufficientBalance, next.Dec(), balance.Dec())
			}
			debt = next
		} else {
			if amount.Gt(debt) {
				return fmt.Errorf("%w: %s > %s", ErrExceedsDebt, amount.Dec(), debt.Dec())
			}
			debt = new(uint256.Int).Sub(debt, amount)
		}
		if err := state.PutUint256(l.db, state.Key(prefixDebt, debtor[:]), debt); err != nil {
			return err
		}
		l.log.Debug("debt changed",
			log.Stringer("debtor", debtor),
			log.String("debt", debt.Dec()),
		)
		return l.store.Emit(l.md.Address, "DebtChanged",
			"debtor", debtor.String(),
			"amount", amount.Dec(),
			"add", fmt.Sprint(add),
			"debt", debt.Dec(),
		)
	})
}

// ToWrapped converts a face amount to wrapped units.
func (l *Ledger) ToWrapped(amount *uint256.Int) (*uint256.Int, error) {
	if l.wrapped == nil {
		return nil, ErrInvalidAddress
	}
	return l.wrapped.BalanceTo(amount)
}

// FromWrapped converts wrapped units to a face amount.
func (l *Ledger) FromWrapped(amount *uint256.Int) (*uint256.Int, error) {
	if l.wrapped == nil {
		return nil, ErrInvalidAddress
	}
	return l.wrapped.BalanceFrom(amount)
}
