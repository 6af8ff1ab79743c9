// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

var ErrSupplyCapExceeded = errors.New("supply cap exceeded")

// Base is the protocol token. Only the vault may mint and total supply never
// exceeds the cap.
type Base struct {
	*Ledger

	cap       *uint256.Int
	authority *authority.Registry
}

// NewBase returns the base ledger with supply capped at [cap].
func NewBase(md Metadata, cap *uint256.Int, authority *authority.Registry, store *state.Store, logger log.Logger) *Base {
	return &Base{
		Ledger:    New(md, store, logger),
		cap:       cap.Clone(),
		authority: authority,
	}
}

// Cap returns the maximum total supply.
func (b *Base) Cap() *uint256.Int {
	return b.cap.Clone()
}

// Mint credits [amount] to [to]. [caller] must be the vault.
func (b *Base) Mint(caller, to ids.ShortID, amount *uint256.Int) error {
	return b.store.Atomic(func() error {
		if err := b.authority.OnlyVault(caller); err != nil {
			return err
		}
		supply, err := b.TotalSupply()
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(supply, amount)
		if overflow || next.Gt(b.cap) {
			return fmt.Errorf("%w: %s + %s > %s", ErrSupplyCapExceeded, supply.Dec(), amount.Dec(), b.cap.Dec())
		}
		if err := b.Ledger.Mint(to, amount); err != nil {
			return err
		}
		b.log.Debug("minted",
			log.Stringer("to", to),
			log.String("amount", amount.Dec()),
		)
		return nil
	})
}

// Burn destroys [amount] of [caller]'s balance.
func (b *Base) Burn(caller ids.ShortID, amount *uint256.Int) error {
	return b.Ledger.Burn(caller, amount)
}
