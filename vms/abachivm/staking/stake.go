// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package staking

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	safemath "github.com/luxfi/abachi/utils/math"
)

// checkExternal fails with [lockErr] when [caller] acts for another account
// and either side has locked external actions.
func (e *Engine) checkExternal(caller, to ids.ShortID, lockErr error) error {
	if caller == to {
		return nil
	}
	for _, account := range []ids.ShortID{to, caller} {
		entry, err := e.WarmupInfo(account)
		if err != nil {
			return err
		}
		if entry.Lock {
			return fmt.Errorf("%w: %s", lockErr, account)
		}
	}
	return nil
}

// Stake pulls [amount] base tokens from [caller]. With [claim] set and no
// warmup the elastic or wrapped tokens are sent to [to] at once, otherwise they
// wait in [to]'s warmup entry. It returns the amount staked.
func (e *Engine) Stake(caller, to ids.ShortID, amount *uint256.Int, rebasing, claim bool) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.store.Atomic(func() error {
		if to == ids.ShortEmpty {
			return ErrInvalidAddress
		}
		if err := e.checkExternal(caller, to, ErrExternalDepositsLocked); err != nil {
			return err
		}
		if err := e.base.TransferFrom(e.address, caller, e.address, amount); err != nil {
			return err
		}

		period, err := e.WarmupPeriod()
		if err != nil {
			return err
		}
		if claim && period == 0 {
			out, err = e.send(to, amount, rebasing)
			return err
		}

		epoch, err := e.Epoch()
		if err != nil {
			return err
		}
		expiry, err := safemath.Add(epoch.Number, period)
		if err != nil {
			return err
		}
		gons, err := e.elastic.GonsForBalance(amount)
		if err != nil {
			return err
		}
		entry, err := e.WarmupInfo(to)
		if err != nil {
			return err
		}
		entry.Deposit = new(uint256.Int).Add(entry.Deposit, amount)
		entry.Gons = new(uint256.Int).Add(entry.Gons, gons)
		entry.Expiry = expiry
		if err := e.putWarmup(to, entry); err != nil {
			return err
		}
		if err := e.addGonsInWarmup(gons); err != nil {
			return err
		}
		e.log.Debug("staked into warmup",
			log.Stringer("to", to),
			log.String("amount", amount.Dec()),
			log.Uint64("expiry", expiry),
		)
		out = amount.Clone()
		return e.store.Emit(e.address, "Staked",
			"from", caller.String(),
			"to", to.String(),
			"amount", amount.Dec(),
			"expiry", fmt.Sprint(expiry),
		)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Claim releases [to]'s warmup entry once it has expired. Claiming an entry
// that does not exist or has not expired does nothing and returns zero, even
// for a caller the lock would otherwise refuse.
func (e *Engine) Claim(caller, to ids.ShortID, rebasing bool) (*uint256.Int, error) {
	out := new(uint256.Int)
	err := e.store.Atomic(func() error {
		entry, err := e.WarmupInfo(to)
		if err != nil {
			return err
		}
		epoch, err := e.Epoch()
		if err != nil {
			return err
		}
		if entry.Empty() || epoch.Number < entry.Expiry {
			return nil
		}
		if err := e.checkExternal(caller, to, ErrExternalClaimsLocked); err != nil {
			return err
		}

		if err := e.putWarmup(to, WarmupEntry{
			Deposit: new(uint256.Int),
			Gons:    new(uint256.Int),
			Lock:    entry.Lock,
		}); err != nil {
			return err
		}
		if err := e.subGonsInWarmup(entry.Gons); err != nil {
			return err
		}
		amount, err := e.elastic.BalanceForGons(entry.Gons)
		if err != nil {
			return err
		}
		out, err = e.send(to, amount, rebasing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Forfeit drops [caller]'s warmup entry and returns the base tokens deposited,
// without any rebase growth.
func (e *Engine) Forfeit(caller ids.ShortID) (*uint256.Int, error) {
	var deposit *uint256.Int
	err := e.store.Atomic(func() error {
		entry, err := e.WarmupInfo(caller)
		if err != nil {
			return err
		}
		if err := e.putWarmup(caller, WarmupEntry{
			Deposit: new(uint256.Int),
			Gons:    new(uint256.Int),
			Lock:    entry.Lock,
		}); err != nil {
			return err
		}
		if err := e.subGonsInWarmup(entry.Gons); err != nil {
			return err
		}
		deposit = entry.Deposit
		return e.base.Transfer(e.address, caller, deposit)
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// ToggleLock flips [caller]'s lock on deposits and claims made by others.
func (e *Engine) ToggleLock(caller ids.ShortID) (bool, error) {
	var locked bool
	err := e.store.Atomic(func() error {
		entry, err := e.WarmupInfo(caller)
		if err != nil {
			return err
		}
		entry.Lock = !entry.Lock
		locked = entry.Lock
		if err := e.putWarmup(caller, entry); err != nil {
			return err
		}
		return e.store.Emit(e.address, "LockToggled",
			"account", caller.String(),
			"lock", fmt.Sprint(locked),
		)
	})
	return locked, err
}

// Unstake takes [amount] elastic (or wrapped) tokens from [caller] and pays
// the base equivalent to [to]. The payout is capped at the engine's base
// balance.
func (e *Engine) Unstake(caller, to ids.ShortID, amount *uint256.Int, trigger, rebasing bool) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.store.Atomic(func() error {
		if trigger {
			if _, err := e.Rebase(caller); err != nil {
				return err
			}
		}

		owed := amount.Clone()
		if rebasing {
			if err := e.elastic.TransferFrom(e.address, caller, e.address, amount); err != nil {
				return err
			}
		} else {
			if err := e.wrapped.Burn(e.address, caller, amount); err != nil {
				return err
			}
			var err error
			owed, err = e.wrapped.BalanceFrom(amount)
			if err != nil {
				return err
			}
		}

		held, err := e.base.BalanceOf(e.address)
		if err != nil {
			return err
		}
		if owed.Gt(held) {
			e.log.Warn("partial unstake",
				log.Stringer("to", to),
				log.String("owed", owed.Dec()),
				log.String("paid", held.Dec()),
			)
			owed = held
		}
		out = owed
		return e.base.Transfer(e.address, to, owed)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Wrap converts [amount] of [caller]'s elastic tokens into wrapped tokens for
// [to].
func (e *Engine) Wrap(caller, to ids.ShortID, amount *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.store.Atomic(func() error {
		if err := e.elastic.TransferFrom(e.address, caller, e.address, amount); err != nil {
			return err
		}
		var err error
		out, err = e.wrapped.BalanceTo(amount)
		if err != nil {
			return err
		}
		return e.wrapped.Mint(e.address, to, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Unwrap converts [amount] of [caller]'s wrapped tokens into elastic tokens
// for [to].
func (e *Engine) Unwrap(caller, to ids.ShortID, amount *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.store.Atomic(func() error {
		if err := e.wrapped.Burn(e.address, caller, amount); err != nil {
			return err
		}
		var err error
		out, err = e.wrapped.BalanceFrom(amount)
		if err != nil {
			return err
		}
		return e.elastic.Transfer(e.address, to, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// send delivers [amount] face value to [to] as elastic tokens, or as wrapped
// tokens when not [rebasing].
func (e *Engine) send(to ids.ShortID, amount *uint256.Int, rebasing bool) (*uint256.Int, error) {
	if rebasing {
		if err := e.elastic.Transfer(e.address, to, amount); err != nil {
			return nil, err
		}
		return amount.Clone(), nil
	}
	wrappedAmount, err := e.wrapped.BalanceTo(amount)
	if err != nil {
		return nil, err
	}
	if err := e.wrapped.Mint(e.address, to, wrappedAmount); err != nil {
		return nil, err
	}
	return wrappedAmount, nil
}
