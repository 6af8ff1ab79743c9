// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package distributor mints epoch rewards to a list of recipients through the
// treasury. Rates are expressed per million of the base supply.
package distributor

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/state"
)

// RateDenominator is the rate that mints the whole base supply.
const RateDenominator = 1_000_000

var (
	ErrOnlyStaking       = errors.New("only staking")
	ErrRateTooHigh       = errors.New("rate too high")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrAdjustmentLimit   = errors.New("cannot adjust by more than 2.5%")
	ErrDecreaseTooLarge  = errors.New("cannot decrease rate by more than it already is")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrRecipientNotFound = errors.New("recipient index out of range")

	keyCount     = []byte("count")
	prefixInfo   = []byte("info:")
	prefixAdjust = []byte("adjust:")
)

// Supply reports the base token supply rewards are computed from.
type Supply interface {
	TotalSupply() (*uint256.Int, error)
}

// Minter mints base tokens on behalf of the distributor.
type Minter interface {
	Mint(caller, recipient ids.ShortID, amount *uint256.Int) error
}

// Info is one reward recipient.
type Info struct {
	Recipient ids.ShortID `json:"recipient"`
	Rate      uint64      `json:"rate"`
}

// Adjustment moves a recipient's rate towards Target by Rate every epoch.
type Adjustment struct {
	Add    bool   `json:"add"`
	Rate   uint64 `json:"rate"`
	Target uint64 `json:"target"`
}

type Config struct {
	Address   ids.ShortID
	Staking   ids.ShortID
	Supply    Supply
	Minter    Minter
	Authority *authority.Registry
}

type Distributor struct {
	address   ids.ShortID
	staking   ids.ShortID
	supply    Supply
	minter    Minter
	authority *authority.Registry

	store *state.Store
	db    database.Database
	log   log.Logger
}

func New(cfg Config, store *state.Store, logger log.Logger) (*Distributor, error) {
	if cfg.Address == ids.ShortEmpty || cfg.Staking == ids.ShortEmpty {
		return nil, ErrInvalidAddress
	}
	if cfg.Supply == nil || cfg.Minter == nil || cfg.Authority == nil {
		return nil, errors.New("missing distributor dependency")
	}
	return &Distributor{
		address:   cfg.Address,
		staking:   cfg.Staking,
		supply:    cfg.Supply,
		minter:    cfg.Minter,
		authority: cfg.Authority,
		store:     store,
		db:        store.Scope(state.Key([]byte("distributor:"), cfg.Address[:])),
		log:       logger,
	}, nil
}

func (d *Distributor) Address() ids.ShortID { return d.address }

// Recipients returns every recipient slot, including removed ones.
func (d *Distributor) Recipients() ([]Info, error) {
	count, err := state.GetUint64(d.db, keyCount)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, count)
	for i := uint64(0); i < count; i++ {
		info, err := d.info(i)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Distributor) info(index uint64) (Info, error) {
	var info Info
	ok, err := state.GetJSON(d.db, state.Key(prefixInfo, state.Uint64Key(index)), &info)
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{}, fmt.Errorf("%w: %d", ErrRecipientNotFound, index)
	}
	return info, nil
}

func (d *Distributor) putInfo(index uint64, info Info) error {
	return state.PutJSON(d.db, state.Key(prefixInfo, state.Uint64Key(index)), info)
}

// Adjustment returns the pending adjustment of recipient [index].
func (d *Distributor) Adjustment(index uint64) (Adjustment, error) {
	var adj Adjustment
	_, err := state.GetJSON(d.db, state.Key(prefixAdjust, state.Uint64Key(index)), &adj)
	return adj, err
}

func (d *Distributor) putAdjustment(index uint64, adj Adjustment) error {
	return state.PutJSON(d.db, state.Key(prefixAdjust, state.Uint64Key(index)), adj)
}

// NextRewardAt is the reward minted at [rate] for the current supply.
func (d *Distributor) NextRewardAt(rate uint64) (*uint256.Int, error) {
	supply, err := d.supply.TotalSupply()
	if err != nil {
		return nil, err
	}
	reward, overflow := new(uint256.Int).MulDivOverflow(supply, uint256.NewInt(rate), uint256.NewInt(RateDenominator))
	if overflow {
		return nil, fmt.Errorf("reward at rate %d overflows", rate)
	}
	return reward, nil
}

// NextRewardFor is the reward [recipient] receives at the next distribution.
func (d *Distributor) NextRewardFor(recipient ids.ShortID) (*uint256.Int, error) {
	infos, err := d.Recipients()
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, info := range infos {
		if info.Recipient != recipient {
			continue
		}
		reward, err := d.NextRewardAt(info.Rate)
		if err != nil {
			return nil, err
		}
		total.Add(total, reward)
	}
	return total, nil
}

// Distribute mints every recipient's reward and applies pending adjustments.
// Only the staking engine may call it.
func (d *Distributor) Distribute(caller ids.ShortID) error {
	return d.store.Atomic(func() error {
		if caller != d.staking {
			return fmt.Errorf("%w: %s", ErrOnlyStaking, caller)
		}
		infos, err := d.Recipients()
		if err != nil {
			return err
		}
		for i, info := range infos {
			if info.Rate == 0 {
				continue
			}
			reward, err := d.NextRewardAt(info.Rate)
			if err != nil {
				return err
			}
			if err := d.minter.Mint(d.address, info.Recipient, reward); err != nil {
				return fmt.Errorf("minting reward for %s: %w", info.Recipient, err)
			}
			d.log.Debug("reward distributed",
				log.Stringer("recipient", info.Recipient),
				log.String("reward", reward.Dec()),
			)
			if err := d.adjust(uint64(i), info); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Distributor) adjust(index uint64, info Info) error {
	adj, err := d.Adjustment(index)
	if err != nil {
		return err
	}
	if adj.Rate == 0 {
		return nil
	}
	if adj.Add {
		info.Rate += adj.Rate
		if info.Rate >= adj.Target {
			adj.Rate = 0
			info.Rate = adj.Target
		}
	} else {
		if info.Rate > adj.Rate {
			info.Rate -= adj.Rate
		} else {
			info.Rate = 0
		}
		if info.Rate <= adj.Target {
			adj.Rate = 0
			info.Rate = adj.Target
		}
	}
	if err := d.putAdjustment(index, adj); err != nil {
		return err
	}
	return d.putInfo(index, info)
}

// AddRecipient appends a recipient earning [rate] per million of supply.
func (d *Distributor) AddRecipient(caller, recipient ids.ShortID, rate uint64) error {
	return d.store.Atomic(func() error {
		if err := d.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		if recipient == ids.ShortEmpty {
			return ErrInvalidRecipient
		}
		if rate > RateDenominator {
			return fmt.Errorf("%w: %d", ErrRateTooHigh, rate)
		}
		count, err := state.GetUint64(d.db, keyCount)
		if err != nil {
			return err
		}
		if err := d.putInfo(count, Info{Recipient: recipient, Rate: rate}); err != nil {
			return err
		}
		if err := state.PutUint64(d.db, keyCount, count+1); err != nil {
			return err
		}
		return d.store.Emit(d.address, "RecipientAdded",
			"index", fmt.Sprint(count),
			"recipient", recipient.String(),
			"rate", fmt.Sprint(rate),
		)
	})
}

// RemoveRecipient clears the slot at [index]. The slot keeps its position.
func (d *Distributor) RemoveRecipient(caller ids.ShortID, index uint64) error {
	return d.store.Atomic(func() error {
		if err := d.authority.OnlyGovernorOrGuardian(caller); err != nil {
			return err
		}
		info, err := d.info(index)
		if err != nil {
			return err
		}
		if info.Recipient == ids.ShortEmpty {
			return ErrInvalidRecipient
		}
		if err := d.putInfo(index, Info{}); err != nil {
			return err
		}
		return d.store.Emit(d.address, "RecipientRemoved",
			"index", fmt.Sprint(index),
			"recipient", info.Recipient.String(),
		)
	})
}

// SetAdjustment schedules a rate change for recipient [index]. The guardian
// may only move a rate by 2.5% of its current value per epoch.
func (d *Distributor) SetAdjustment(caller ids.ShortID, index uint64, add bool, rate, target uint64) error {
	return d.store.Atomic(func() error {
		if err := d.authority.OnlyGovernorOrGuardian(caller); err != nil {
			return err
		}
		info, err := d.info(index)
		if err != nil {
			return err
		}
		if info.Recipient == ids.ShortEmpty {
			return ErrInvalidRecipient
		}
		governor, err := d.authority.Governor()
		if err != nil {
			return err
		}
		if caller != governor && rate > info.Rate*25/1000 {
			return ErrAdjustmentLimit
		}
		if !add && rate > info.Rate {
			return ErrDecreaseTooLarge
		}
		if err := d.putAdjustment(index, Adjustment{Add: add, Rate: rate, Target: target}); err != nil {
			return err
		}
		return d.store.Emit(d.address, "AdjustmentSet",
			"index", fmt.Sprint(index),
			"add", fmt.Sprint(add),
			"rate", fmt.Sprint(rate),
			"target", fmt.Sprint(target),
		)
	})
}
