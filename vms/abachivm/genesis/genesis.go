// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package genesis describes the initial state of an abachi chain.
package genesis

import (
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/utils/json"
	"github.com/luxfi/abachi/vms/abachivm/treasury"
)

var (
	ErrInvalidGenesis   = errors.New("invalid genesis")
	ErrDuplicateAddress = errors.New("duplicate address")
)

// Addresses of the protocol components.
type Addresses struct {
	Authority   ids.ShortID `json:"authority"`
	Base        ids.ShortID `json:"base"`
	Elastic     ids.ShortID `json:"elastic"`
	Wrapped     ids.ShortID `json:"wrapped"`
	Staking     ids.ShortID `json:"staking"`
	Distributor ids.ShortID `json:"distributor"`
	Treasury    ids.ShortID `json:"treasury"`
}

// List returns every component address.
func (a Addresses) List() []ids.ShortID {
	return []ids.ShortID{a.Authority, a.Base, a.Elastic, a.Wrapped, a.Staking, a.Distributor, a.Treasury}
}

// Roles are the initial authority holders. The vault should be the treasury
// so it can mint the base token.
type Roles struct {
	Governor ids.ShortID `json:"governor"`
	Guardian ids.ShortID `json:"guardian"`
	Policy   ids.ShortID `json:"policy"`
	Vault    ids.ShortID `json:"vault"`
}

// Epoch is the first rebase epoch. A zero End is replaced by the genesis time
// plus Length.
type Epoch struct {
	Length json.Uint64 `json:"length"`
	Number json.Uint64 `json:"number"`
	End    json.Uint64 `json:"end"`
}

type Allocation struct {
	Address ids.ShortID  `json:"address"`
	Amount  *uint256.Int `json:"amount"`
}

// Asset is a reserve or liquidity token that exists from genesis.
type Asset struct {
	Address     ids.ShortID  `json:"address"`
	Symbol      string       `json:"symbol"`
	Decimals    uint8        `json:"decimals"`
	Allocations []Allocation `json:"allocations"`
}

// Grant enables a treasury permission class, by name or number.
type Grant struct {
	Class   string      `json:"class"`
	Address ids.ShortID `json:"address"`
}

type DebtLimit struct {
	Account ids.ShortID  `json:"account"`
	Limit   *uint256.Int `json:"limit"`
}

type Recipient struct {
	Address ids.ShortID `json:"address"`
	Rate    json.Uint64 `json:"rate"`
}

// Valuator prices a liquidity token linearly: Price base units per 1e18.
type Valuator struct {
	Address ids.ShortID  `json:"address"`
	Token   ids.ShortID  `json:"token"`
	Price   *uint256.Int `json:"price"`
}

type Genesis struct {
	Addresses Addresses   `json:"addresses"`
	Roles     Roles       `json:"roles"`
	Deployer  ids.ShortID `json:"deployer"`

	Cap    *uint256.Int `json:"cap"`
	Index  *uint256.Int `json:"index"`
	Epoch  Epoch        `json:"epoch"`
	Warmup json.Uint64  `json:"warmup"`

	Assets      []Asset     `json:"assets"`
	Permissions []Grant     `json:"permissions"`
	DebtLimits  []DebtLimit `json:"debtLimits"`
	Recipients  []Recipient `json:"recipients"`
	Valuators   []Valuator  `json:"valuators"`
}

// Parse decodes and verifies a genesis.
func Parse(b []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := stdjson.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := g.Verify(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Genesis) Bytes() ([]byte, error) {
	return stdjson.MarshalIndent(g, "", "  ")
}

// Verify checks that the genesis can be bootstrapped.
func (g *Genesis) Verify() error {
	seen := make(map[ids.ShortID]struct{})
	claim := func(addr ids.ShortID, what string) error {
		if addr == ids.ShortEmpty {
			return fmt.Errorf("%w: missing %s address", ErrInvalidGenesis, what)
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("%w: %s %s", ErrDuplicateAddress, what, addr)
		}
		seen[addr] = struct{}{}
		return nil
	}
	for _, addr := range g.Addresses.List() {
		if err := claim(addr, "component"); err != nil {
			return err
		}
	}
	for _, asset := range g.Assets {
		if err := claim(asset.Address, "asset"); err != nil {
			return err
		}
		for _, alloc := range asset.Allocations {
			if alloc.Address == ids.ShortEmpty || alloc.Amount == nil {
				return fmt.Errorf("%w: bad allocation of %s", ErrInvalidGenesis, asset.Symbol)
			}
		}
	}

	switch {
	case g.Roles.Governor == ids.ShortEmpty, g.Roles.Guardian == ids.ShortEmpty,
		g.Roles.Policy == ids.ShortEmpty, g.Roles.Vault == ids.ShortEmpty:
		return fmt.Errorf("%w: every role needs a holder", ErrInvalidGenesis)
	case g.Deployer == ids.ShortEmpty:
		return fmt.Errorf("%w: missing deployer", ErrInvalidGenesis)
	case g.Cap == nil || g.Cap.IsZero():
		return fmt.Errorf("%w: missing cap", ErrInvalidGenesis)
	case g.Index == nil || g.Index.IsZero():
		return fmt.Errorf("%w: missing index", ErrInvalidGenesis)
	case g.Epoch.Length == 0:
		return fmt.Errorf("%w: epoch length must be positive", ErrInvalidGenesis)
	}

	for _, grant := range g.Permissions {
		if _, err := treasury.ParsePermission(grant.Class); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
		}
		if grant.Address == ids.ShortEmpty {
			return fmt.Errorf("%w: grant of %s without address", ErrInvalidGenesis, grant.Class)
		}
	}
	for _, limit := range g.DebtLimits {
		if limit.Account == ids.ShortEmpty || limit.Limit == nil {
			return fmt.Errorf("%w: bad debt limit", ErrInvalidGenesis)
		}
	}
	for _, r := range g.Recipients {
		if r.Address == ids.ShortEmpty {
			return fmt.Errorf("%w: recipient without address", ErrInvalidGenesis)
		}
	}
	for _, v := range g.Valuators {
		if v.Address == ids.ShortEmpty || v.Token == ids.ShortEmpty || v.Price == nil {
			return fmt.Errorf("%w: bad valuator", ErrInvalidGenesis)
		}
	}
	return nil
}
