// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidPermission = errors.New("invalid permission class")

// Permission is a treasury permission class. The numeric values are part of
// the transaction format.
type Permission uint8

const (
	ReserveDepositor Permission = iota
	ReserveSpender
	ReserveToken
	ReserveManager
	LiquidityDepositor
	LiquidityToken
	LiquidityManager
	ReserveDebtor
	RewardManager
	StakedLedger
	BaseDebtor

	numPermissions
)

var permissionNames = [numPermissions]string{
	ReserveDepositor:   "reserveDepositor",
	ReserveSpender:     "reserveSpender",
	ReserveToken:       "reserveToken",
	ReserveManager:     "reserveManager",
	LiquidityDepositor: "liquidityDepositor",
	LiquidityToken:     "liquidityToken",
	LiquidityManager:   "liquidityManager",
	ReserveDebtor:      "reserveDebtor",
	RewardManager:      "rewardManager",
	StakedLedger:       "stakedLedger",
	BaseDebtor:         "baseDebtor",
}

func (p Permission) String() string {
	if !p.Valid() {
		return "unknown(" + strconv.Itoa(int(p)) + ")"
	}
	return permissionNames[p]
}

func (p Permission) Valid() bool {
	return p < numPermissions
}

// SingleSlot reports whether at most one address may hold [p] at a time.
func (p Permission) SingleSlot() bool {
	return p == StakedLedger
}

// Debtor reports whether holders of [p] may borrow.
func (p Permission) Debtor() bool {
	return p == ReserveDebtor || p == BaseDebtor
}

// ParsePermission accepts a class name or its numeric value.
func ParsePermission(s string) (Permission, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		p := Permission(n)
		if !p.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidPermission, n)
		}
		return p, nil
	}
	for i, name := range permissionNames {
		if name == s {
			return Permission(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
}
