// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package abachivm implements a reserve-backed, rebasing staking protocol as a
// virtual machine.
//
// The chain carries a capped base token minted only against treasury reserves,
// an elastic staked token whose balances grow every epoch, a wrapped
// index-denominated form of it, the staking engine that drives the epoch
// schedule and the distributor that mints rewards each rebase. Transactions
// are JSON envelopes executed in blocks; each one commits or rolls back on its
// own.
package abachivm

import (
	"github.com/luxfi/log"

	luxvm "github.com/luxfi/abachi"
	"github.com/luxfi/abachi/vms/abachivm/config"
)

var (
	// VMID is the unique identifier for the Abachi VM
	VMID = [32]byte{'a', 'b', 'a', 'c', 'h', 'i'}

	_ luxvm.Factory = (*Factory)(nil)
)

// Factory creates new Abachi VM instances.
type Factory struct {
	config.Config
}

func (f *Factory) New(logger log.Logger) (luxvm.VM, error) {
	if err := f.Config.Validate(); err != nil {
		return nil, err
	}
	return New(f.Config, logger), nil
}
