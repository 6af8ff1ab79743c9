// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/vms/abachivm/ledger"
)

// Valuator prices liquidity tokens in base units.
type Valuator interface {
	Valuation(token ids.ShortID, amount *uint256.Int) (*uint256.Int, error)
}

var valuationUnit = uint256.NewInt(1_000_000_000_000_000_000)

// LinearValuator values every 1e18 units of a token at Price base units.
type LinearValuator struct {
	Price *uint256.Int
}

func (v LinearValuator) Valuation(_ ids.ShortID, amount *uint256.Int) (*uint256.Int, error) {
	value, overflow := new(uint256.Int).MulDivOverflow(amount, v.Price, valuationUnit)
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return value, nil
}
