// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

// stakedLedger resolves the ledger holding the staked-ledger slot.
func (t *Treasury) stakedLedger() (Debtor, error) {
	addr, err := t.Slot(StakedLedger)
	if err != nil {
		return nil, err
	}
	if addr == ids.ShortEmpty {
		return nil, ErrNoStakedLedger
	}
	token, err := t.tokens.Get(addr)
	if err != nil {
		return nil, err
	}
	debtor, ok := token.(Debtor)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not track debt", ErrInvalidToken, addr)
	}
	return debtor, nil
}

func (t *Treasury) addTotal(key []byte, value *uint256.Int) error {
	total, err := state.GetUint256(t.db, key)
	if err != nil {
		return err
	}
	if _, overflow := total.AddOverflow(total, value); overflow {
		return ledger.ErrOverflow
	}
	return state.PutUint256(t.db, key, total)
}

// subTotal lowers the total at [key], stopping at zero.
func (t *Treasury) subTotal(key []byte, value *uint256.Int) error {
	total, err := state.GetUint256(t.db, key)
	if err != nil {
		return err
	}
	if total.Lt(value) {
		total.Clear()
	} else {
		total.Sub(total, value)
	}
	return state.PutUint256(t.db, key, total)
}

// IncurDebt lends [amount] of [asset] to [caller] against its staked balance.
// Borrowing the base token mints it; borrowing a reserve token draws on
// reserves.
func (t *Treasury) IncurDebt(caller ids.ShortID, amount *uint256.Int, asset ids.ShortID) error {
	return t.store.Atomic(func() error {
		var (
			value  *uint256.Int
			isBase = asset == t.base.Address()
			err    error
		)
		if isBase {
			if err := t.requirePermission(BaseDebtor, caller); err != nil {
				return err
			}
			value = amount.Clone()
		} else {
			if err := t.requirePermission(ReserveDebtor, caller); err != nil {
				return err
			}
			reserveToken, err := t.Permissions(ReserveToken, asset)
			if err != nil {
				return err
			}
			if !reserveToken {
				return fmt.Errorf("%w: %s is not a reserve token", ErrInvalidToken, asset)
			}
			value, err = t.TokenValue(asset, amount)
			if err != nil {
				return err
			}
		}
		if value.IsZero() {
			return ErrInvalidAmount
		}

		staked, err := t.stakedLedger()
		if err != nil {
			return err
		}
		if err := staked.ChangeDebt(t.address, caller, value, true); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return fmt.Errorf("%w: %v", ErrInsufficientStakedBalance, err)
			}
			return err
		}
		debt, err := staked.DebtBalances(caller)
		if err != nil {
			return err
		}
		limit, err := t.DebtLimit(caller)
		if err != nil {
			return err
		}
		if debt.Gt(limit) {
			return fmt.Errorf("%w: debt %s over limit %s", ErrDebtLimitExceeded, debt.Dec(), limit.Dec())
		}
		if err := t.addTotal(keyTotalDebt, value); err != nil {
			return err
		}

		if isBase {
			if err := t.base.Mint(t.address, caller, value); err != nil {
				return err
			}
			if err := t.addTotal(keyBaseDebt, value); err != nil {
				return err
			}
		} else {
			if err := t.subReserves(value); err != nil {
				return err
			}
			token, err := t.tokens.Get(asset)
			if err != nil {
				return err
			}
			if err := token.Transfer(t.address, caller, amount); err != nil {
				return err
			}
		}
		t.log.Info("debt incurred",
			log.Stringer("debtor", caller),
			log.Stringer("asset", asset),
			log.String("value", value.Dec()),
		)
		return t.store.Emit(t.address, "CreateDebt",
			"debtor", caller.String(),
			"token", asset.String(),
			"amount", amount.Dec(),
			"value", value.Dec(),
		)
	})
}

// RepayDebtWithReserve pays debt back with [amount] of a reserve token.
// Paying more than is owed fails.
func (t *Treasury) RepayDebtWithReserve(caller ids.ShortID, amount *uint256.Int, asset ids.ShortID) error {
	return t.store.Atomic(func() error {
		reserveToken, err := t.Permissions(ReserveToken, asset)
		if err != nil {
			return err
		}
		if !reserveToken {
			return fmt.Errorf("%w: %s is not a reserve token", ErrInvalidToken, asset)
		}
		token, err := t.tokens.Get(asset)
		if err != nil {
			return err
		}
		if err := token.TransferFrom(t.address, caller, t.address, amount); err != nil {
			return err
		}
		value, err := t.TokenValue(asset, amount)
		if err != nil {
			return err
		}
		if err := t.repay(caller, value); err != nil {
			return err
		}
		if err := t.addReserves(value); err != nil {
			return err
		}
		return t.store.Emit(t.address, "RepayDebt",
			"debtor", caller.String(),
			"token", asset.String(),
			"amount", amount.Dec(),
			"value", value.Dec(),
		)
	})
}

// RepayDebtWithBase burns [amount] base tokens from [caller] to pay its debt.
// The caller must have approved the treasury on the base ledger.
func (t *Treasury) RepayDebtWithBase(caller ids.ShortID, amount *uint256.Int) error {
	return t.store.Atomic(func() error {
		reserveDebtor, err := t.Permissions(ReserveDebtor, caller)
		if err != nil {
			return err
		}
		baseDebtor, err := t.Permissions(BaseDebtor, caller)
		if err != nil {
			return err
		}
		if !reserveDebtor && !baseDebtor {
			return fmt.Errorf("%w: %s", ErrNotADebtor, caller)
		}
		if err := t.base.BurnFrom(t.address, caller, amount); err != nil {
			return err
		}
		if err := t.repay(caller, amount); err != nil {
			return err
		}
		if err := t.subTotal(keyBaseDebt, amount); err != nil {
			return err
		}
		return t.store.Emit(t.address, "RepayDebt",
			"debtor", caller.String(),
			"token", t.base.Address().String(),
			"amount", amount.Dec(),
			"value", amount.Dec(),
		)
	})
}

func (t *Treasury) repay(debtor ids.ShortID, value *uint256.Int) error {
	if value.IsZero() {
		return ErrInvalidAmount
	}
	staked, err := t.stakedLedger()
	if err != nil {
		return err
	}
	if err := staked.ChangeDebt(t.address, debtor, value, false); err != nil {
		return err
	}
	return t.subTotal(keyTotalDebt, value)
}
