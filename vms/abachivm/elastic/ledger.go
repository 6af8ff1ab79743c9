// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package elastic implements the rebasing staked ledger.
//
// Balances are stored as gons, shares of a fixed pool of TotalGons. The face
// value of an account is its gons divided by the current gons-per-fragment
// ratio, so a rebase that raises total supply raises every face balance
// proportionally without touching any account.
package elastic

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/utils/units"
	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

var (
	ErrAlreadySet          = errors.New("already set")
	ErrNotInitializer      = errors.New("caller is not the initializer")
	ErrDebtLocked          = errors.New("balance would fall below debt")
	ErrExceedsDebt         = errors.New("amount exceeds outstanding debt")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrAllowanceExceeded   = ledger.ErrAllowanceExceeded
	ErrInvalidAddress      = ledger.ErrInvalidAddress
	ErrOverflow            = ledger.ErrOverflow

	// InitialFragmentsSupply is the face supply before the first rebase.
	InitialFragmentsSupply = uint256.NewInt(5_000_000 * units.Abi)

	// TotalGons is the largest multiple of InitialFragmentsSupply that fits in
	// 256 bits, so gons per fragment starts as an integer.
	TotalGons = func() *uint256.Int {
		maxUint := new(uint256.Int).SetAllOne()
		rem := new(uint256.Int).Mod(maxUint, InitialFragmentsSupply)
		return new(uint256.Int).Sub(maxUint, rem)
	}()

	// MaxSupply caps total face supply at 2^128 - 1.
	MaxSupply = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	keySupply      = []byte("supply")
	keyGPF         = []byte("gonsPerFragment")
	keyIndexGons   = []byte("indexGons")
	keyInitializer = []byte("initializer")
	keyStaking     = []byte("staking")
	keyTreasury    = []byte("treasury")
	keyWrapper     = []byte("wrapper")
	keyRebaseCount = []byte("rebaseCount")

	prefixGons      = []byte("gons:")
	prefixAllowance = []byte("allowance:")
	prefixDebt      = []byte("debt:")
	prefixRebase    = []byte("rebase:")
)

// WrappedSupply is the part of the wrapped ledger the circulating supply
// depends on.
type WrappedSupply interface {
	Address() ids.ShortID
	TotalSupply() (*uint256.Int, error)
	BalanceTo(amount *uint256.Int) (*uint256.Int, error)
	BalanceFrom(amount *uint256.Int) (*uint256.Int, error)
}

// WarmupSupply reports the face value parked in the staking warmup.
type WarmupSupply interface {
	SupplyInWarmup() (*uint256.Int, error)
}

// Rebase records one supply expansion.
type Rebase struct {
	Epoch             uint64       `json:"epoch"`
	Rebase            *uint256.Int `json:"rebase"` // 1e18 = 100%
	TotalStakedBefore *uint256.Int `json:"totalStakedBefore"`
	TotalStakedAfter  *uint256.Int `json:"totalStakedAfter"`
	AmountRebased     *uint256.Int `json:"amountRebased"`
	Index             *uint256.Int `json:"index"`
}

var _ ledger.Token = (*Ledger)(nil)

// Ledger is the elastic staked ledger.
type Ledger struct {
	md    ledger.Metadata
	store *state.Store
	db    database.Database
	log   log.Logger

	wrapped WrappedSupply
	warmup  WarmupSupply
}

// New returns the elastic ledger persisted in [store]. Genesis must run once
// before first use.
func New(md ledger.Metadata, store *state.Store, logger log.Logger) *Ledger {
	return &Ledger{
		md:    md,
		store: store,
		db:    store.Scope(state.Key([]byte("elastic:"), md.Address[:])),
		log:   logger,
	}
}

// Bind connects the ledger to the components its circulating supply reads.
func (l *Ledger) Bind(wrapped WrappedSupply, warmup WarmupSupply) {
	l.wrapped = wrapped
	l.warmup = warmup
}

// Genesis writes the initial supply and records [initializer] as the only
// identity allowed to run the one-time setup.
func (l *Ledger) Genesis(initializer ids.ShortID) error {
	return l.store.Atomic(func() error {
		if initializer == ids.ShortEmpty {
			return ErrInvalidAddress
		}
		gpf := new(uint256.Int).Div(TotalGons, InitialFragmentsSupply)
		if err := state.PutUint256(l.db, keySupply, InitialFragmentsSupply); err != nil {
			return err
		}
		if err := state.PutUint256(l.db, keyGPF, gpf); err != nil {
			return err
		}
		return state.PutShortID(l.db, keyInitializer, initializer)
	})
}

func (l *Ledger) Info() ledger.Metadata { return l.md }
func (l *Ledger) Address() ids.ShortID { return l.md.Address }
func (l *Ledger) Symbol() string { return l.md.Symbol }
func (l *Ledger) Decimals() uint8 { return l.md.Decimals }

func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return state.GetUint256(l.db, keySupply)
}

func (l *Ledger) gonsPerFragment() (*uint256.Int, error) {
	gpf, err := state.GetUint256(l.db, keyGPF)
	if err != nil {
		return nil, err
	}
	if gpf.IsZero() {
		return nil, fmt.Errorf("%w: gons per fragment is zero", state.ErrStateCorrupted)
	}
	return gpf, nil
}

// GonsForBalance converts a face amount into gons at the current ratio.
func (l *Ledger) GonsForBalance(amount *uint256.Int) (*uint256.Int, error) {
	gpf, err := l.gonsPerFragment()
	if err != nil {
		return nil, err
	}
	gons, overflow := new(uint256.Int).MulOverflow(amount, gpf)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds the gons pool", ErrOverflow, amount.Dec())
	}
	return gons, nil
}

// BalanceForGons converts gons into a face amount, rounding down.
func (l *Ledger) BalanceForGons(gons *uint256.Int) (*uint256.Int, error) {
	gpf, err := l.gonsPerFragment()
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(gons, gpf), nil
}

func (l *Ledger) gonsOf(account ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(l.db, state.Key(prefixGons, account[:]))
}

// BalanceOf returns the face balance of [account].
func (l *Ledger) BalanceOf(account ids.ShortID) (*uint256.Int, error) {
	gons, err := l.gonsOf(account)
	if err != nil {
		return nil, err
	}
	return l.BalanceForGons(gons)
}

// Index is the face value of the gons recorded by SetIndex.
func (l *Ledger) Index() (*uint256.Int, error) {
	gons, err := state.GetUint256(l.db, keyIndexGons)
	if err != nil {
		return nil, err
	}
	return l.BalanceForGons(gons)
}

func (l *Ledger) requireInitializer(caller ids.ShortID) error {
	initializer, err := state.GetShortID(l.db, keyInitializer)
	if err != nil {
		return err
	}
	if initializer == ids.ShortEmpty || caller != initializer {
		return ErrNotInitializer
	}
	return nil
}

// SetIndex records the starting index. It can only be set once.
func (l *Ledger) SetIndex(caller ids.ShortID, index *uint256.Int) error {
	return l.store.Atomic(func() error {
		if err := l.requireInitializer(caller); err != nil {
			return err
		}
		current, err := state.GetUint256(l.db, keyIndexGons)
		if err != nil {
			return err
		}
		if !current.IsZero() {
			return fmt.Errorf("%w: index", ErrAlreadySet)
		}
		gons, err := l.GonsForBalance(index)
		if err != nil {
			return err
		}
		return state.PutUint256(l.db, keyIndexGons, gons)
	})
}

// SetWrapper records the wrapped ledger. It can only be set once.
func (l *Ledger) SetWrapper(caller, wrapper ids.ShortID) error {
	return l.store.Atomic(func() error {
		if err := l.requireInitializer(caller); err != nil {
			return err
		}
		if wrapper == ids.ShortEmpty || (l.wrapped != nil && l.wrapped.Address() != wrapper) {
			return ErrInvalidAddress
		}
		current, err := state.GetShortID(l.db, keyWrapper)
		if err != nil {
			return err
		}
		if current != ids.ShortEmpty {
			return fmt.Errorf("%w: wrapper", ErrAlreadySet)
		}
		return state.PutShortID(l.db, keyWrapper, wrapper)
	})
}

// Initialize hands the whole gons pool to the staking engine, records the
// treasury and ends the setup phase.
func (l *Ledger) Initialize(caller, staking, treasury ids.ShortID) error {
	return l.store.Atomic(func() error {
		if err := l.requireInitializer(caller); err != nil {
			return err
		}
		if staking == ids.ShortEmpty || treasury == ids.ShortEmpty {
			return ErrInvalidAddress
		}
		if err := state.PutUint256(l.db, state.Key(prefixGons, staking[:]), TotalGons); err != nil {
			return err
		}
		if err := state.PutShortID(l.db, keyStaking, staking); err != nil {
			return err
		}
		if err := state.PutShortID(l.db, keyTreasury, treasury); err != nil {
			return err
		}
		if err := l.db.Delete(keyInitializer); err != nil {
			return err
		}
		supply, err := l.TotalSupply()
		if err != nil {
			return err
		}
		if err := l.store.Emit(l.md.Address, "Transfer",
			"from", ids.ShortEmpty.String(),
			"to", staking.String(),
			"value", supply.Dec(),
		); err != nil {
			return err
		}
		return l.store.Emit(l.md.Address, "LogStakingContractUpdated", "staking", staking.String())
	})
}

// Staking returns the staking engine address.
func (l *Ledger) Staking() (ids.ShortID, error) {
	return state.GetShortID(l.db, keyStaking)
}

// Treasury returns the treasury address.
func (l *Ledger) Treasury() (ids.ShortID, error) {
	return state.GetShortID(l.db, keyTreasury)
}

// Wrapper returns the wrapped ledger address.
func (l *Ledger) Wrapper() (ids.ShortID, error) {
	return state.GetShortID(l.db, keyWrapper)
}

// CirculatingSupply is the face supply outside the staking engine's pool:
// held balances, the face value behind wrapped tokens and the warmup.
func (l *Ledger) CirculatingSupply() (*uint256.Int, error) {
	supply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	staking, err := l.Staking()
	if err != nil {
		return nil, err
	}
	pool, err := l.BalanceOf(staking)
	if err != nil {
		return nil, err
	}
	circulating := new(uint256.Int).Sub(supply, pool)

	wrapper, err := l.Wrapper()
	if err != nil {
		return nil, err
	}
	if wrapper != ids.ShortEmpty && l.wrapped != nil {
		wrappedSupply, err := l.wrapped.TotalSupply()
		if err != nil {
			return nil, err
		}
		backing, err := l.wrapped.BalanceFrom(wrappedSupply)
		if err != nil {
			return nil, err
		}
		circulating.Add(circulating, backing)
	}
	if l.warmup != nil {
		warm, err := l.warmup.SupplyInWarmup()
		if err != nil {
			return nil, err
		}
		circulating.Add(circulating, warm)
	}
	return circulating, nil
}

// Rebase expands total supply by [profit] scaled to the circulating supply.
// Only the staking engine may rebase.
func (l *Ledger) Rebase(caller ids.ShortID, profit *uint256.Int, epoch uint64) error {
	return l.store.Atomic(func() error {
		staking, err := l.Staking()
		if err != nil {
			return err
		}
		if staking == ids.ShortEmpty || caller != staking {
			return fmt.Errorf("%w: rebase by %s", authority.ErrUnauthorized, caller)
		}

		supply, err := l.TotalSupply()
		if err != nil {
			return err
		}
		circulating, err := l.CirculatingSupply()
		if err != nil {
			return err
		}

		if profit.IsZero() {
			index, err := l.Index()
			if err != nil {
				return err
			}
			if err := l.emitSupply(epoch, supply); err != nil {
				return err
			}
			return l.store.Emit(l.md.Address, "LogRebase",
				"epoch", strconv.FormatUint(epoch, 10),
				"rebase", "0",
				"index", index.Dec(),
			)
		}

		rebaseAmount := profit.Clone()
		if !circulating.IsZero() {
			var overflow bool
			rebaseAmount, overflow = new(uint256.Int).MulDivOverflow(profit, supply, circulating)
			if overflow {
				rebaseAmount = MaxSupply.Clone()
			}
		}

		next, overflow := new(uint256.Int).AddOverflow(supply, rebaseAmount)
		if overflow || next.Gt(MaxSupply) {
			next = MaxSupply.Clone()
		}
		if err := state.PutUint256(l.db, keySupply, next); err != nil {
			return err
		}
		if err := state.PutUint256(l.db, keyGPF, new(uint256.Int).Div(TotalGons, next)); err != nil {
			return err
		}

		if err := l.storeRebase(circulating, profit, epoch); err != nil {
			return err
		}
		l.log.Info("rebased",
			log.Uint64("epoch", epoch),
			log.String("profit", profit.Dec()),
			log.String("totalSupply", next.Dec()),
		)
		return l.emitSupply(epoch, next)
	})
}

func (l *Ledger) emitSupply(epoch uint64, supply *uint256.Int) error {
	return l.store.Emit(l.md.Address, "LogSupply",
		"epoch", strconv.FormatUint(epoch, 10),
		"totalSupply", supply.Dec(),
	)
}

func (l *Ledger) storeRebase(previousCirculating, profit *uint256.Int, epoch uint64) error {
	rebasePercent := new(uint256.Int)
	if !previousCirculating.IsZero() {
		rebasePercent, _ = new(uint256.Int).MulDivOverflow(profit, uint256.NewInt(1e18), previousCirculating)
	}
	index, err := l.Index()
	if err != nil {
		return err
	}
	record := Rebase{
		Epoch:             epoch,
		Rebase:            rebasePercent,
		TotalStakedBefore: previousCirculating,
		TotalStakedAfter:  new(uint256.Int).Add(previousCirculating, profit),
		AmountRebased:     profit,
		Index:             index,
	}

	count, err := state.GetUint64(l.db, keyRebaseCount)
	if err != nil {
		return err
	}
	if err := state.PutJSON(l.db, state.Key(prefixRebase, state.Uint64Key(count)), record); err != nil {
		return err
	}
	if err := state.PutUint64(l.db, keyRebaseCount, count+1); err != nil {
		return err
	}
	return l.store.Emit(l.md.Address, "LogRebase",
		"epoch", strconv.FormatUint(epoch, 10),
		"rebase", rebasePercent.Dec(),
		"index", index.Dec(),
	)
}

// Rebases returns the recorded rebase history, oldest first.
func (l *Ledger) Rebases() ([]Rebase, error) {
	count, err := state.GetUint64(l.db, keyRebaseCount)
	if err != nil {
		return nil, err
	}
	rebases := make([]Rebase, 0, count)
	for i := uint64(0); i < count; i++ {
		var r Rebase
		if _, err := state.GetJSON(l.db, state.Key(prefixRebase, state.Uint64Key(i)), &r); err != nil {
			return nil, err
		}
		rebases = append(rebases, r)
	}
	return rebases, nil
}
