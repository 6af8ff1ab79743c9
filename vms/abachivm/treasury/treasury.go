// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package treasury implements the reserve and debt engine. It mints the base
// token against deposited reserves and lends against staked balances.
package treasury

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
	ErrInvalidAddress            = ledger.ErrInvalidAddress
	ErrInvalidToken              = errors.New("invalid token")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrExceedsExcessReserves     = errors.New("exceeds excess reserves")
	ErrInsufficientReserves      = errors.New("insufficient reserves")
	ErrInsufficientStakedBalance = errors.New("insufficient staked balance")
	ErrDebtLimitExceeded         = errors.New("debt limit exceeded")
	ErrNotADebtor                = errors.New("not a debtor")
	ErrNoStakedLedger            = errors.New("staked ledger not set")
	ErrUnknownValuator           = errors.New("unknown valuator")

	keyTotalReserves = []byte("totalReserves")
	keyTotalDebt     = []byte("totalDebt")
	keyBaseDebt      = []byte("baseDebt")
	prefixPermission = []byte("perm:")
	prefixRegistry   = []byte("registry:")
	prefixDebtLimit  = []byte("debtLimit:")
	prefixValuator   = []byte("valuator:")
	prefixSlot       = []byte("slot:")
)

// BaseToken is the view of the base ledger the treasury needs.
type BaseToken interface {
	ledger.Token
	Mint(caller, to ids.ShortID, amount *uint256.Int) error
	BurnFrom(caller, holder ids.ShortID, amount *uint256.Int) error
}

// Debtor is the staked ledger debt is recorded against.
type Debtor interface {
	BalanceOf(account ids.ShortID) (*uint256.Int, error)
	DebtBalances(account ids.ShortID) (*uint256.Int, error)
	ChangeDebt(caller, debtor ids.ShortID, amount *uint256.Int, add bool) error
}

type Config struct {
	Address   ids.ShortID
	Base      BaseToken
	Tokens    *ledger.Registry
	Authority *authority.Registry
}

type Treasury struct {
	address   ids.ShortID
	base      BaseToken
	tokens    *ledger.Registry
	authority *authority.Registry

	valuators map[ids.ShortID]Valuator

	store *state.Store
	db    database.Database
	log   log.Logger
}

func New(cfg Config, store *state.Store, logger log.Logger) (*Treasury, error) {
	switch {
	case cfg.Address == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: treasury", ErrInvalidAddress)
	case cfg.Base == nil || cfg.Base.Address() == ids.ShortEmpty:
		return nil, fmt.Errorf("%w: base ledger", ErrInvalidAddress)
	case cfg.Tokens == nil || cfg.Authority == nil:
		return nil, errors.New("missing treasury dependency")
	}
	return &Treasury{
		address:   cfg.Address,
		base:      cfg.Base,
		tokens:    cfg.Tokens,
		authority: cfg.Authority,
		valuators: make(map[ids.ShortID]Valuator),
		store:     store,
		db:        store.Scope(state.Key([]byte("treasury:"), cfg.Address[:])),
		log:       logger,
	}, nil
}

// RegisterValuator makes [v] available to SetValuator under [addr].
func (t *Treasury) RegisterValuator(addr ids.ShortID, v Valuator) {
	t.valuators[addr] = v
}

func (t *Treasury) Address() ids.ShortID { return t.address }

func (t *Treasury) TotalReserves() (*uint256.Int, error) {
	return state.GetUint256(t.db, keyTotalReserves)
}

func (t *Treasury) TotalDebt() (*uint256.Int, error) {
	return state.GetUint256(t.db, keyTotalDebt)
}

// BaseDebt is the part of the total debt that was minted as base tokens.
func (t *Treasury) BaseDebt() (*uint256.Int, error) {
	return state.GetUint256(t.db, keyBaseDebt)
}

func permissionKey(class Permission, addr ids.ShortID) []byte {
	return state.Key(prefixPermission, []byte{byte(class)}, addr[:])
}

// Permissions reports whether [addr] holds [class].
func (t *Treasury) Permissions(class Permission, addr ids.ShortID) (bool, error) {
	if !class.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidPermission, class)
	}
	return state.GetBool(t.db, permissionKey(class, addr))
}

func (t *Treasury) DebtLimit(addr ids.ShortID) (*uint256.Int, error) {
	return state.GetUint256(t.db, state.Key(prefixDebtLimit, addr[:]))
}

// Slot returns the holder of a single-slot class, or ids.ShortEmpty.
func (t *Treasury) Slot(class Permission) (ids.ShortID, error) {
	return state.GetShortID(t.db, state.Key(prefixSlot, []byte{byte(class)}))
}

// Valuator returns the valuator address configured for [token].
func (t *Treasury) Valuator(token ids.ShortID) (ids.ShortID, error) {
	return state.GetShortID(t.db, state.Key(prefixValuator, token[:]))
}

func registryCountKey(class Permission) []byte {
	return state.Key(prefixRegistry, []byte{byte(class)})
}

func registryEntryKey(class Permission, i uint64) []byte {
	return state.Key(prefixRegistry, []byte{byte(class)}, state.Uint64Key(i))
}

// Registry returns every address ever enabled for [class], in order.
func (t *Treasury) Registry(class Permission) ([]ids.ShortID, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPermission, class)
	}
	count, err := state.GetUint64(t.db, registryCountKey(class))
	if err != nil {
		return nil, err
	}
	addrs := make([]ids.ShortID, 0, count)
	for i := uint64(0); i < count; i++ {
		addr, err := state.GetShortID(t.db, registryEntryKey(class, i))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (t *Treasury) addToRegistry(class Permission, addr ids.ShortID) error {
	addrs, err := t.Registry(class)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if a == addr {
			return nil
		}
	}
	count := uint64(len(addrs))
	if err := state.PutShortID(t.db, registryEntryKey(class, count), addr); err != nil {
		return err
	}
	return state.PutUint64(t.db, registryCountKey(class), count+1)
}

func (t *Treasury) setPermission(class Permission, addr ids.ShortID, enabled bool) error {
	if err := state.PutBool(t.db, permissionKey(class, addr), enabled); err != nil {
		return err
	}
	name := "PermissionDisabled"
	if enabled {
		name = "PermissionEnabled"
	}
	return t.store.Emit(t.address, name,
		"class", class.String(),
		"address", addr.String(),
	)
}

func (t *Treasury) requirePermission(class Permission, addr ids.ShortID) error {
	ok, err := t.Permissions(class, addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks %s", authority.ErrUnauthorized, addr, class)
	}
	return nil
}

// Enable grants [class] to [addr]. For a single-slot class the previous holder
// and [extra] lose it in the same step.
func (t *Treasury) Enable(caller ids.ShortID, class Permission, addr, extra ids.ShortID) error {
	return t.store.Atomic(func() error {
		if err := t.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		if !class.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidPermission, class)
		}
		if addr == ids.ShortEmpty {
			return ErrInvalidAddress
		}

		if class.SingleSlot() {
			if _, err := t.tokens.Get(addr); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidToken, err)
			}
			if extra != ids.ShortEmpty && extra != addr {
				if err := t.setPermission(class, extra, false); err != nil {
					return err
				}
			}
			previous, err := t.Slot(class)
			if err != nil {
				return err
			}
			if previous != ids.ShortEmpty && previous != addr {
				if err := t.setPermission(class, previous, false); err != nil {
					return err
				}
			}
			if err := state.PutShortID(t.db, state.Key(prefixSlot, []byte{byte(class)}), addr); err != nil {
				return err
			}
		}

		if err := t.setPermission(class, addr, true); err != nil {
			return err
		}
		if err := t.addToRegistry(class, addr); err != nil {
			return err
		}
		t.log.Info("permission enabled",
			log.Stringer("class", class),
			log.Stringer("address", addr),
		)
		return nil
	})
}

// Disable revokes [class] from [addr].
func (t *Treasury) Disable(caller ids.ShortID, class Permission, addr ids.ShortID) error {
	return t.store.Atomic(func() error {
		if err := t.authority.OnlyGovernorOrGuardian(caller); err != nil {
			return err
		}
		if !class.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidPermission, class)
		}
		if class.SingleSlot() {
			slot, err := t.Slot(class)
			if err != nil {
				return err
			}
			if slot == addr {
				if err := t.db.Delete(state.Key(prefixSlot, []byte{byte(class)})); err != nil {
					return err
				}
			}
		}
		return t.setPermission(class, addr, false)
	})
}

// SetDebtLimit caps the debt of [account], which must hold a debtor class.
func (t *Treasury) SetDebtLimit(caller, account ids.ShortID, limit *uint256.Int) error {
	return t.store.Atomic(func() error {
		if err := t.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		reserveDebtor, err := t.Permissions(ReserveDebtor, account)
		if err != nil {
			return err
		}
		baseDebtor, err := t.Permissions(BaseDebtor, account)
		if err != nil {
			return err
		}
		if !reserveDebtor && !baseDebtor {
			return fmt.Errorf("%w: %s", ErrNotADebtor, account)
		}
		if err := state.PutUint256(t.db, state.Key(prefixDebtLimit, account[:]), limit); err != nil {
			return err
		}
		return t.store.Emit(t.address, "DebtLimitSet",
			"account", account.String(),
			"limit", limit.Dec(),
		)
	})
}

// SetValuator prices [token] with the valuator registered at [valuator].
func (t *Treasury) SetValuator(caller, token, valuator ids.ShortID) error {
	return t.store.Atomic(func() error {
		if err := t.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		if _, ok := t.valuators[valuator]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownValuator, valuator)
		}
		if err := state.PutShortID(t.db, state.Key(prefixValuator, token[:]), valuator); err != nil {
			return err
		}
		return t.store.Emit(t.address, "ValuatorSet",
			"token", token.String(),
			"valuator", valuator.String(),
		)
	})
}

// TokenValue converts [amount] of [token] into base units. Liquidity tokens use
// their valuator, every other token is converted by decimals.
func (t *Treasury) TokenValue(token ids.ShortID, amount *uint256.Int) (*uint256.Int, error) {
	liquidity, err := t.Permissions(LiquidityToken, token)
	if err != nil {
		return nil, err
	}
	if liquidity {
		addr, err := t.Valuator(token)
		if err != nil {
			return nil, err
		}
		v, ok := t.valuators[addr]
		if !ok {
			return nil, fmt.Errorf("%w: none for %s", ErrUnknownValuator, token)
		}
		return v.Valuation(token, amount)
	}

	asset, err := t.tokens.Get(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return convertDecimals(amount, asset.Decimals(), t.base.Decimals())
}

func convertDecimals(amount *uint256.Int, from, to uint8) (*uint256.Int, error) {
	ten := uint256.NewInt(10)
	if from >= to {
		divisor := new(uint256.Int).Exp(ten, uint256.NewInt(uint64(from-to)))
		return new(uint256.Int).Div(amount, divisor), nil
	}
	factor := new(uint256.Int).Exp(ten, uint256.NewInt(uint64(to-from)))
	value, overflow := new(uint256.Int).MulOverflow(amount, factor)
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return value, nil
}

// ExcessReserves is the reserve value not backing outstanding base supply.
func (t *Treasury) ExcessReserves() (*uint256.Int, error) {
	reserves, err := t.TotalReserves()
	if err != nil {
		return nil, err
	}
	supply, err := t.base.TotalSupply()
	if err != nil {
		return nil, err
	}
	debt, err := t.TotalDebt()
	if err != nil {
		return nil, err
	}
	backed := new(uint256.Int)
	if supply.Gt(debt) {
		backed.Sub(supply, debt)
	}
	excess := new(uint256.Int)
	if reserves.Gt(backed) {
		excess.Sub(reserves, backed)
	}
	return excess, nil
}

// AuditReserves recomputes total reserves from the treasury's token balances.
func (t *Treasury) AuditReserves(caller ids.ShortID) error {
	return t.store.Atomic(func() error {
		if err := t.authority.OnlyGovernor(caller); err != nil {
			return err
		}
		reserves := new(uint256.Int)
		for _, class := range []Permission{ReserveToken, LiquidityToken} {
			addrs, err := t.Registry(class)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				enabled, err := t.Permissions(class, addr)
				if err != nil {
					return err
				}
				if !enabled {
					continue
				}
				token, err := t.tokens.Get(addr)
				if err != nil {
					return err
				}
				balance, err := token.BalanceOf(t.address)
				if err != nil {
					return err
				}
				value, err := t.TokenValue(addr, balance)
				if err != nil {
					return err
				}
				if _, overflow := reserves.AddOverflow(reserves, value); overflow {
					return ledger.ErrOverflow
				}
			}
		}
		if err := state.PutUint256(t.db, keyTotalReserves, reserves); err != nil {
			return err
		}
		t.log.Info("reserves audited", log.String("totalReserves", reserves.Dec()))
		return t.store.Emit(t.address, "ReservesAudited", "totalReserves", reserves.Dec())
	})
}

func (t *Treasury) addReserves(value *uint256.Int) error {
	reserves, err := t.TotalReserves()
	if err != nil {
		return err
	}
	if _, overflow := reserves.AddOverflow(reserves, value); overflow {
		return ledger.ErrOverflow
	}
	return state.PutUint256(t.db, keyTotalReserves, reserves)
}

func (t *Treasury) subReserves(value *uint256.Int) error {
	reserves, err := t.TotalReserves()
	if err != nil {
		return err
	}
	if reserves.Lt(value) {
		return fmt.Errorf("%w: %s < %s", ErrInsufficientReserves, reserves.Dec(), value.Dec())
	}
	return state.PutUint256(t.db, keyTotalReserves, reserves.Sub(reserves, value))
}
