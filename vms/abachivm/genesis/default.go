// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/utils/units"
)

// DefaultEpochLength is eight hours.
const DefaultEpochLength = 8 * 60 * 60

// Address derives a readable development address from [name].
func Address(name string) ids.ShortID {
	var addr ids.ShortID
	copy(addr[:], name)
	return addr
}

var (
	DAI     = Address("asset:dai")
	DAIPool = Address("asset:abi-dai")
	Faucet  = Address("faucet")
)

// Default returns the development genesis: one 18 decimal reserve asset, one
// liquidity token priced at 2 ABI and the staking engine earning 0.3% of the
// supply every epoch.
func Default() *Genesis {
	addrs := Addresses{
		Authority:   Address("authority"),
		Base:        Address("abi"),
		Elastic:     Address("sabi"),
		Wrapped:     Address("gabi"),
		Staking:     Address("staking"),
		Distributor: Address("distributor"),
		Treasury:    Address("treasury"),
	}
	faucetFunds := uint256.MustFromDecimal("1000000000000000000000000000") // 1e9 tokens at 18 decimals
	return &Genesis{
		Addresses: addrs,
		Roles: Roles{
			Governor: Address("governor"),
			Guardian: Address("guardian"),
			Policy:   Address("policy"),
			Vault:    addrs.Treasury,
		},
		Deployer: Address("deployer"),
		Cap:      uint256.NewInt(units.MegaAbi),
		Index:    uint256.NewInt(units.Abi),
		Epoch: Epoch{
			Length: DefaultEpochLength,
			Number: 1,
		},
		Assets: []Asset{
			{
				Address:     DAI,
				Symbol:      "DAI",
				Decimals:    18,
				Allocations: []Allocation{{Address: Faucet, Amount: faucetFunds}},
			},
			{
				Address:     DAIPool,
				Symbol:      "ABI-DAI",
				Decimals:    18,
				Allocations: []Allocation{{Address: Faucet, Amount: faucetFunds.Clone()}},
			},
		},
		Permissions: []Grant{
			{Class: "reserveToken", Address: DAI},
			{Class: "reserveDepositor", Address: Faucet},
			{Class: "liquidityToken", Address: DAIPool},
			{Class: "liquidityDepositor", Address: Faucet},
		},
		Recipients: []Recipient{
			{Address: addrs.Staking, Rate: 3000},
		},
		Valuators: []Valuator{
			{Address: Address("valuator:abi-dai"), Token: DAIPool, Price: uint256.NewInt(2 * units.Abi)},
		},
	}
}
