// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

func (t *Treasury) requireExcess(value *uint256.Int) error {
	excess, err := t.ExcessReserves()
	if err != nil {
		return err
	}
	if value.Gt(excess) {
		return fmt.Errorf("%w: %s > %s", ErrExceedsExcessReserves, value.Dec(), excess.Dec())
	}
	return nil
}

// Deposit takes [amount] of [asset] from [caller] into reserves and mints
// [mintAmount] base tokens to the caller. The mint may not exceed the excess
// reserves after the deposit is credited. It returns the deposit's value.
func (t *Treasury) Deposit(caller ids.ShortID, amount *uint256.Int, asset ids.ShortID, mintAmount *uint256.Int) (*uint256.Int, error) {
	var value *uint256.Int
	err := t.store.Atomic(func() error {
		reserveToken, err := t.Permissions(ReserveToken, asset)
		if err != nil {
			return err
		}
		liquidityToken, err := t.Permissions(LiquidityToken, asset)
		if err != nil {
			return err
		}
		switch {
		case reserveToken:
			err = t.requirePermission(ReserveDepositor, caller)
		case liquidityToken:
			err = t.requirePermission(LiquidityDepositor, caller)
		default:
			err = fmt.Errorf("%w: %s", ErrInvalidToken, asset)
		}
		if err != nil {
			return err
		}

		token, err := t.tokens.Get(asset)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if err := token.TransferFrom(t.address, caller, t.address, amount); err != nil {
			return err
		}
		value, err = t.TokenValue(asset, amount)
		if err != nil {
			return err
		}
		if err := t.addReserves(value); err != nil {
			return err
		}
		if err := t.requireExcess(mintAmount); err != nil {
			return err
		}
		if err := t.base.Mint(t.address, caller, mintAmount); err != nil {
			return err
		}
		t.log.Info("deposit",
			log.Stringer("depositor", caller),
			log.Stringer("asset", asset),
			log.String("value", value.Dec()),
			log.String("minted", mintAmount.Dec()),
		)
		return t.store.Emit(t.address, "Deposit",
			"depositor", caller.String(),
			"token", asset.String(),
			"amount", amount.Dec(),
			"value", value.Dec(),
			"minted", mintAmount.Dec(),
		)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Withdraw burns the base value of [amount] [asset] from [caller] and releases
// the asset from reserves. The caller must have approved the treasury on the
// base ledger.
func (t *Treasury) Withdraw(caller ids.ShortID, amount *uint256.Int, asset ids.ShortID) error {
	return t.store.Atomic(func() error {
		reserveToken, err := t.Permissions(ReserveToken, asset)
		if err != nil {
			return err
		}
		if !reserveToken {
			return fmt.Errorf("%w: %s is not a reserve token", ErrInvalidToken, asset)
		}
		if err := t.requirePermission(ReserveSpender, caller); err != nil {
			return err
		}
		value, err := t.TokenValue(asset, amount)
		if err != nil {
			return err
		}
		if err := t.base.BurnFrom(t.address, caller, value); err != nil {
			return err
		}
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
		return t.store.Emit(t.address, "Withdrawal",
			"spender", caller.String(),
			"token", asset.String(),
			"amount", amount.Dec(),
			"value", value.Dec(),
		)
	})
}

// Manage sends [amount] of [asset] to a manager. Reserve and liquidity tokens
// may only leave up to the excess reserves.
func (t *Treasury) Manage(caller, asset ids.ShortID, amount *uint256.Int) error {
	return t.store.Atomic(func() error {
		liquidityToken, err := t.Permissions(LiquidityToken, asset)
		if err != nil {
			return err
		}
		reserveToken, err := t.Permissions(ReserveToken, asset)
		if err != nil {
			return err
		}
		if liquidityToken {
			err = t.requirePermission(LiquidityManager, caller)
		} else {
			err = t.requirePermission(ReserveManager, caller)
		}
		if err != nil {
			return err
		}

		value := new(uint256.Int)
		if reserveToken || liquidityToken {
			value, err = t.TokenValue(asset, amount)
			if err != nil {
				return err
			}
			if err := t.requireExcess(value); err != nil {
				return err
			}
			if err := t.subReserves(value); err != nil {
				return err
			}
		}
		token, err := t.tokens.Get(asset)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if err := token.Transfer(t.address, caller, amount); err != nil {
			return err
		}
		return t.store.Emit(t.address, "Managed",
			"manager", caller.String(),
			"token", asset.String(),
			"amount", amount.Dec(),
			"value", value.Dec(),
		)
	})
}

// Mint creates [amount] base tokens for [recipient] out of excess reserves.
// The caller must be a reward manager.
func (t *Treasury) Mint(caller, recipient ids.ShortID, amount *uint256.Int) error {
	return t.store.Atomic(func() error {
		if err := t.requirePermission(RewardManager, caller); err != nil {
			return err
		}
		if err := t.requireExcess(amount); err != nil {
			return err
		}
		if err := t.base.Mint(t.address, recipient, amount); err != nil {
			return err
		}
		return t.store.Emit(t.address, "Minted",
			"caller", caller.String(),
			"recipient", recipient.String(),
			"amount", amount.Dec(),
		)
	})
}
