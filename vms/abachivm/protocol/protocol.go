// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocol wires the abachi components together over one store.
package protocol

import (
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/utils/units"
	"github.com/luxfi/abachi/utils/wrappers"
	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/distributor"
	"github.com/luxfi/abachi/vms/abachivm/elastic"
	"github.com/luxfi/abachi/vms/abachivm/genesis"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/staking"
	"github.com/luxfi/abachi/vms/abachivm/state"
	"github.com/luxfi/abachi/vms/abachivm/treasury"
	"github.com/luxfi/abachi/vms/abachivm/wrapped"
)

var keyBootstrapped = []byte("bootstrapped")

// Protocol holds every component of one chain.
type Protocol struct {
	Genesis *genesis.Genesis

	Authority   *authority.Registry
	Base        *ledger.Base
	Elastic     *elastic.Ledger
	Wrapped     *wrapped.Ledger
	Staking     *staking.Engine
	Distributor *distributor.Distributor
	Treasury    *treasury.Treasury

	// Tokens resolves every ledger by address: base, elastic, wrapped and the
	// genesis assets.
	Tokens *ledger.Registry
	// Assets are the plain ledgers created at genesis.
	Assets map[ids.ShortID]*ledger.Ledger

	store *state.Store
	db    database.Database
	log   log.Logger
}

// New builds the components described by [g]. It does not write state; call
// Bootstrap once on a fresh store.
func New(
	g *genesis.Genesis,
	store *state.Store,
	clock staking.Clock,
	policy staking.Policy,
	logger log.Logger,
) (*Protocol, error) {
	addrs := g.Addresses
	p := &Protocol{
		Genesis:   g,
		Authority: authority.Load(addrs.Authority, store, logger),
		Tokens:    ledger.NewRegistry(),
		Assets:    make(map[ids.ShortID]*ledger.Ledger, len(g.Assets)),
		store:     store,
		db:        store.Scope([]byte("protocol")),
		log:       logger,
	}

	p.Base = ledger.NewBase(
		ledger.Metadata{Address: addrs.Base, Name: "Abachi", Symbol: "ABI", Decimals: units.AbiDecimals},
		g.Cap,
		p.Authority,
		store,
		logger,
	)
	p.Elastic = elastic.New(
		ledger.Metadata{Address: addrs.Elastic, Name: "Staked ABI", Symbol: "sABI", Decimals: units.AbiDecimals},
		store,
		logger,
	)
	p.Wrapped = wrapped.New(
		ledger.Metadata{Address: addrs.Wrapped, Name: "Governance ABI", Symbol: "gABI", Decimals: units.WrappedDecimals},
		p.Elastic,
		store,
		logger,
	)

	errs := wrappers.Errs{}
	errs.Add(
		p.Tokens.Register(p.Base),
		p.Tokens.Register(p.Elastic),
		p.Tokens.Register(p.Wrapped),
	)
	for _, asset := range g.Assets {
		l := ledger.New(ledger.Metadata{Address: asset.Address, Name: asset.Symbol, Symbol: asset.Symbol, Decimals: asset.Decimals}, store, logger)
		p.Assets[asset.Address] = l
		errs.Add(p.Tokens.Register(l))
	}
	if errs.Errored() {
		return nil, errs.Err
	}

	var err error
	p.Staking, err = staking.New(staking.Config{
		Address:   addrs.Staking,
		Base:      p.Base,
		Elastic:   p.Elastic,
		Wrapped:   p.Wrapped,
		Authority: p.Authority,
		Clock:     clock,
		Policy:    policy,
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create staking engine: %w", err)
	}
	p.Elastic.Bind(p.Wrapped, p.Staking)

	p.Treasury, err = treasury.New(treasury.Config{
		Address:   addrs.Treasury,
		Base:      p.Base,
		Tokens:    p.Tokens,
		Authority: p.Authority,
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create treasury: %w", err)
	}
	for _, v := range g.Valuators {
		p.Treasury.RegisterValuator(v.Address, treasury.LinearValuator{Price: v.Price})
	}

	p.Distributor, err = distributor.New(distributor.Config{
		Address:   addrs.Distributor,
		Staking:   addrs.Staking,
		Supply:    p.Base,
		Minter:    p.Treasury,
		Authority: p.Authority,
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create distributor: %w", err)
	}
	p.Staking.RegisterDistributor(addrs.Distributor, p.Distributor)
	return p, nil
}

// Bootstrapped reports whether the genesis state has been written.
func (p *Protocol) Bootstrapped() (bool, error) {
	return state.GetBool(p.db, keyBootstrapped)
}

// Bootstrap writes the genesis state. [now] fills in an unset first epoch end.
func (p *Protocol) Bootstrap(now uint64) error {
	g := p.Genesis
	return p.store.Atomic(func() error {
		done, err := p.Bootstrapped()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		roles := g.Roles
		if _, err := authority.New(g.Addresses.Authority, p.store, p.log, roles.Governor, roles.Guardian, roles.Policy, roles.Vault); err != nil {
			return err
		}
		for _, asset := range g.Assets {
			for _, alloc := range asset.Allocations {
				if err := p.Assets[asset.Address].Mint(alloc.Address, alloc.Amount); err != nil {
					return fmt.Errorf("allocating %s: %w", asset.Symbol, err)
				}
			}
		}
		if err := p.setupLedgers(); err != nil {
			return err
		}

		end := uint64(g.Epoch.End)
		if end == 0 {
			end = now + uint64(g.Epoch.Length)
		}
		if err := p.Staking.Genesis(staking.Epoch{
			Length: uint64(g.Epoch.Length),
			Number: uint64(g.Epoch.Number),
			End:    end,
		}); err != nil {
			return err
		}
		if g.Warmup > 0 {
			if err := p.Staking.SetWarmupLength(roles.Governor, uint64(g.Warmup)); err != nil {
				return err
			}
		}
		if err := p.setupTreasury(); err != nil {
			return err
		}
		if err := p.setupDistributor(); err != nil {
			return err
		}

		p.log.Info("genesis written",
			log.Stringer("governor", roles.Governor),
			log.Uint64("epochEnd", end),
			log.Int("assets", len(g.Assets)),
		)
		return state.PutBool(p.db, keyBootstrapped, true)
	})
}

func (p *Protocol) setupLedgers() error {
	var (
		g        = p.Genesis
		deployer = g.Deployer
		errs     = wrappers.Errs{}
	)
	errs.Add(p.Elastic.Genesis(deployer))
	errs.Add(p.Wrapped.Genesis(deployer))
	errs.Add(p.Elastic.SetIndex(deployer, g.Index))
	errs.Add(p.Elastic.SetWrapper(deployer, g.Addresses.Wrapped))
	errs.Add(p.Elastic.Initialize(deployer, g.Addresses.Staking, g.Addresses.Treasury))
	errs.Add(p.Wrapped.Migrate(deployer, g.Addresses.Staking, g.Addresses.Elastic))
	return errs.Err
}

func (p *Protocol) setupTreasury() error {
	var (
		g        = p.Genesis
		governor = g.Roles.Governor
	)
	if err := p.Treasury.Enable(governor, treasury.StakedLedger, g.Addresses.Elastic, ids.ShortEmpty); err != nil {
		return err
	}
	if err := p.Treasury.Enable(governor, treasury.RewardManager, g.Addresses.Distributor, ids.ShortEmpty); err != nil {
		return err
	}
	for _, grant := range g.Permissions {
		class, err := treasury.ParsePermission(grant.Class)
		if err != nil {
			return err
		}
		if err := p.Treasury.Enable(governor, class, grant.Address, ids.ShortEmpty); err != nil {
			return fmt.Errorf("granting %s to %s: %w", class, grant.Address, err)
		}
	}
	for _, v := range g.Valuators {
		if err := p.Treasury.SetValuator(governor, v.Token, v.Address); err != nil {
			return err
		}
	}
	for _, limit := range g.DebtLimits {
		if err := p.Treasury.SetDebtLimit(governor, limit.Account, limit.Limit); err != nil {
			return err
		}
	}
	return nil
}

func (p *Protocol) setupDistributor() error {
	g := p.Genesis
	for _, r := range g.Recipients {
		if err := p.Distributor.AddRecipient(g.Roles.Governor, r.Address, uint64(r.Rate)); err != nil {
			return err
		}
	}
	return p.Staking.SetDistributor(g.Roles.Governor, g.Addresses.Distributor)
}

// Store returns the store the components persist to.
func (p *Protocol) Store() *state.Store {
	return p.store
}
