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

// Policy decides how many epochs a single rebase call may advance.
type Policy string

const (
	// PolicySingle advances at most one epoch per call.
	PolicySingle Policy = "single"
	// PolicyCatchUp advances until the epoch end is in the future.
	PolicyCatchUp Policy = "catchup"
)

func (p Policy) Valid() bool {
	return p == PolicySingle || p == PolicyCatchUp
}

// ParsePolicy returns the policy named [s].
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// Epoch is the rebase schedule.
type Epoch struct {
	Length     uint64       `json:"length"`
	Number     uint64       `json:"number"`
	End        uint64       `json:"end"`
	Distribute *uint256.Int `json:"distribute"`
}

// WarmupEntry is a stake waiting for its warmup to expire.
type WarmupEntry struct {
	Deposit *uint256.Int `json:"deposit"`
	Gons    *uint256.Int `json:"gons"`
	Expiry  uint64       `json:"expiry"`
	Lock    bool         `json:"lock"`
}

// Empty reports whether the entry holds nothing.
func (w WarmupEntry) Empty() bool {
	return w.Deposit.IsZero() && w.Gons.IsZero()
}

// Rebase advances the epoch once the deadline has passed. Before the deadline
// it does nothing. It returns the number of epochs advanced.
func (e *Engine) Rebase(ids.ShortID) (int, error) {
	steps := 0
	err := e.store.Atomic(func() error {
		now := e.clock.Unix()
		for {
			epoch, err := e.Epoch()
			if err != nil {
				return err
			}
			if epoch.End > now {
				return nil
			}
			if err := e.step(epoch); err != nil {
				return err
			}
			steps++
			if e.policy == PolicySingle {
				return nil
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return steps, nil
}

func (e *Engine) step(epoch Epoch) error {
	held, err := e.base.BalanceOf(e.address)
	if err != nil {
		return err
	}
	circulating, err := e.elastic.CirculatingSupply()
	if err != nil {
		return err
	}
	distribute := new(uint256.Int)
	if held.Gt(circulating) {
		distribute.Sub(held, circulating)
	}
	epoch.Distribute = distribute
	if err := e.putEpoch(epoch); err != nil {
		return err
	}

	distributor, err := e.Distributor()
	if err != nil {
		return err
	}
	if distributor != ids.ShortEmpty {
		d, ok := e.distributors[distributor]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDistributor, distributor)
		}
		if err := d.Distribute(e.address); err != nil {
			return fmt.Errorf("distribution failed: %w", err)
		}
	}

	if err := e.elastic.Rebase(e.address, distribute, epoch.Number); err != nil {
		return err
	}

	end, err := safemath.Add(epoch.End, epoch.Length)
	if err != nil {
		return fmt.Errorf("epoch end: %w", err)
	}
	number, err := safemath.Add(epoch.Number, 1)
	if err != nil {
		return fmt.Errorf("epoch number: %w", err)
	}
	epoch.End = end
	epoch.Number = number
	if err := e.putEpoch(epoch); err != nil {
		return err
	}

	e.log.Info("epoch advanced",
		log.Uint64("number", epoch.Number),
		log.Uint64("end", epoch.End),
		log.String("distribute", distribute.Dec()),
	)
	return e.store.Emit(e.address, "EpochAdvanced",
		"number", fmt.Sprint(epoch.Number),
		"end", fmt.Sprint(epoch.End),
		"distribute", distribute.Dec(),
	)
}
