// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of ABI and sABI
// Both use 9 decimals, so the whole cap fits in a uint64
const (
	NanoAbi  uint64 = 1               // Base unit - 0.000000001 ABI
	MicroAbi uint64 = 1000 * NanoAbi  // 0.000001 ABI
	MilliAbi uint64 = 1000 * MicroAbi // 0.001 ABI
	Abi      uint64 = 1000 * MilliAbi // 1 ABI = 10^9 nanoABI
	KiloAbi  uint64 = 1000 * Abi      // 1,000 ABI
	MegaAbi  uint64 = 1000 * KiloAbi  // 1,000,000 ABI
)

// Decimals of the ledgers
const (
	AbiDecimals     uint8 = 9
	WrappedDecimals uint8 = 18
)
