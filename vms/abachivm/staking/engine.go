// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package staking implements the engine that moves value between the base,
// elastic and wrapped ledgers and drives the epoch rebase.
package staking

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

var (
	ErrInvalidAddress         = ledger.ErrInvalidAddress
	ErrExternalDepositsLocked = errors.New("external deposits for account are locked")
	ErrExternalClaimsLocked   = errors.New("external claims for account are locked")
	ErrUnknownDistributor     = errors.New("unknown distributor")
	ErrInvalidEpochLength     = errors.New("epoch length must be positive")
	ErrUnknownPolicy          = errors.New("unknown rebase policy")

	keyEpoch        = []byte("epoch")
	keyWarmupPeriod = []byte("warmupPeriod")
	keyGonsInWarmup = []byte("gonsInWarmup")
	keyDistributor  = []byte("distributor")
	prefixWarmup    = []byte("warmup:")
)

// Clock reports the time the rebase deadline is compared against.
type Clock interface {
	Unix() uint64
}

// Distributor mints rewards ahead of a rebase. The engine calls it with its own
// address.
type Distributor interface {
	Distribute(caller ids.ShortID) error
}

// Elastic is the view of the rebasing ledger the engine needs.
type Elastic interface {
	ledger.Token
	GonsForBalance(amount *uint256.Int) (*uint256.Int, error)
	BalanceForGons(gons *uint256.Int) (*uint256.Int, error)
	Index() (*uint256.Int, error)
	CirculatingSupply() (*uint256.Int, error)
	Rebase(caller ids.ShortID, profit *uint256.Int, epoch uint64) error
}

// Wrapped is the view of the wrapped ledger the engine needs.
type Wrapped interface {
	ledger.Token
	Mint(caller, to ids.ShortID, amount *uint256.Int) error
	Burn(caller, from ids.ShortID, amount *uint256.Int) error
	BalanceTo(amount *uint256.Int) (*uint256.Int, error)
	BalanceFrom(amount *uint256.Int) (*uint256.Int, error)
}

// Config wires the engine to its collaborators.
type Config struct {
	Address   ids.ShortID
	Base      ledger.Token
	Elastic   Elastic
	Wrapped   Wrapped
	Authority *authority.Registry
	Clock     Clock
	Policy    Policy
}

// Engine is the staking engine.
type Engine struct {
	address   ids.ShortID
	base      ledger.Token
	elastic   Elastic
	wrapped   Wrapped
	authority *authority.Registry
	clock     Clock
	policy    Policy

	// distributors known to the host, keyed by address
	distributors map[ids.ShortID]Distributor

	store *state.Store
	db    database.Database
	log   log.Logger
}

// New returns the engine described by [cfg].
func New(cfg Config, store *state.Store, logger log.Logger) (*Engine, error) {
	switch {
	case cfg.Address == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: engine", ErrInvalidAddress)
	case cfg.Base == nil || cfg.Base.Address() == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: base ledger", ErrInvalidAddress)
	case cfg.Elastic == nil || cfg.Elastic.Address() == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: elastic ledger", ErrInvalidAddress)
	case cfg.Wrapped == nil || cfg.Wrapped.Address() == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: wrapped ledger", ErrInvalidAddress)
	case cfg.Authority == nil:
		return nil, errors.New("missing authority")
	case cfg.Clock == nil:
		return nil, errors.New("missing clock")
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicySingle
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return &Engine{
		address:      cfg.Address,
		base:         cfg.Base,
		elastic:      cfg.Elastic,
		wrapped:      cfg.Wrapped,
		authority:    cfg.Authority,
		clock:        cfg.Clock,
		policy:       policy,
		distributors: make(map[ids.ShortID]Distributor),
		store:        store,
		db:           store.Scope(state.Key([]byte("staking:"), cfg.Address[:])),
		log:          logger,
	}, nil
}

// Genesis records the first epoch. Only its length, number and end are used.
func (e *Engine) Genesis(epoch Epoch) error {
	if epoch.Length == 0 {
		return ErrInvalidEpochLength
	}
	return e.store.Atomic(func() error {
		return e.putEpoch(Epoch{
			Length:     epoch.Length,
			Number:     epoch.Number,
			End:        epoch.End,
			Distribute: new(uint256.Int),
		})
	})
}

// RegisterDistributor makes [d] available to SetDistributor under [addr].
func (e *Engine) RegisterDistributor(addr ids.ShortID, d Distributor) {
	e.distributors[addr] = d
}

func (e *Engine) Address() ids.ShortID { return e.address }

func (e *Engine) Policy() Policy { return e.policy }

// Epoch returns the current epoch.
func (e *Engine) Epoch() (Epoch, error) {
	var epoch Epoch
	if _, err := state.GetJSON(e.db, keyEpoch, &epoch); err != nil {
		return Epoch{}, err
	}
	if epoch.Distribute == nil {
		epoch.Distribute = new(uint256.Int)
	}
	return epoch, nil
}

func (e *Engine) putEpoch(epoch Epoch) error {
	return state.PutJSON(e.db, keyEpoch, epoch)
}

// WarmupInfo returns the warmup entry of [account]. Accounts without an entry
// read as a zero entry.
func (e *Engine) WarmupInfo(account ids.ShortID) (WarmupEntry, error) {
	var entry WarmupEntry
	if _, err := state.GetJSON(e.db, state.Key(prefixWarmup, account[:]), &entry); err != nil {
		return WarmupEntry{}, err
	}
	if entry.Deposit == nil {
		entry.Deposit = new(uint256.Int)
	}
	if entry.Gons == nil {
		entry.Gons = new(uint256.Int)
	}
	return entry, nil
}

func (e *Engine) putWarmup(account ids.ShortID, entry WarmupEntry) error {
	return state.PutJSON(e.db, state.Key(prefixWarmup, account[:]), entry)
}

// WarmupPeriod is the number of epochs a stake waits before it can be claimed.
func (e *Engine) WarmupPeriod() (uint64, error) {
	return state.GetUint64(e.db, keyWarmupPeriod)
}

// GonsInWarmup is the total gons recorded by open warmup entries.
func (e *Engine) GonsInWarmup() (*uint256.Int, error) {
	return state.GetUint256(e.db, keyGonsInWarmup)
}

// SupplyInWarmup is the face value of all open warmup entries.
func (e *Engine) SupplyInWarmup() (*uint256.Int, error) {
	gons, err := e.GonsInWarmup()
	if err != nil {
		return nil, err
	}
	return e.elastic.BalanceForGons(gons)
}

// Distributor returns the configured distributor, or ids.ShortEmpty.
func (e *Engine) Distributor() (ids.ShortID, error) {
	return state.GetShortID(e.db, keyDistributor)
}

// Index returns the elastic ledger's index.
func (e *Engine) Index() (*uint256.Int, error) {
	return e.elastic.Index()
}

// SetDistributor sets the reward distributor. An empty address removes it.
func (e *Engine) SetDistributor(caller, distributor ids.ShortID) error {
	return e.store.Atomic(func() error {
		if err := e.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		if distributor != ids.ShortEmpty {
			if _, ok := e.distributors[distributor]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownDistributor, distributor)
			}
		}
		if err := state.PutShortID(e.db, keyDistributor, distributor); err != nil {
			return err
		}
		e.log.Info("distributor set", log.Stringer("distributor", distributor))
		return e.store.Emit(e.address, "DistributorSet", "distributor", distributor.String())
	})
}

// SetWarmupLength sets the warmup period in epochs.
func (e *Engine) SetWarmupLength(caller ids.ShortID, period uint64) error {
	return e.store.Atomic(func() error {
		if err := e.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		if err := state.PutUint64(e.db, keyWarmupPeriod, period); err != nil {
			return err
		}
		e.log.Info("warmup set", log.Uint64("warmup", period))
		return e.store.Emit(e.address, "WarmupSet", "warmup", fmt.Sprint(period))
	})
}

func (e *Engine) addGonsInWarmup(gons *uint256.Int) error {
	current, err := e.GonsInWarmup()
	if err != nil {
		return err
	}
	if _, overflow := current.AddOverflow(current, gons); overflow {
		return ledger.ErrOverflow
	}
	return state.PutUint256(e.db, keyGonsInWarmup, current)
}

func (e *Engine) subGonsInWarmup(gons *uint256.Int) error {
	current, err := e.GonsInWarmup()
	if err != nil {
		return err
	}
	if current.Lt(gons) {
		return fmt.Errorf("%w: warmup gons below entry", state.ErrStateCorrupted)
	}
	return state.PutUint256(e.db, keyGonsInWarmup, current.Sub(current, gons))
}
