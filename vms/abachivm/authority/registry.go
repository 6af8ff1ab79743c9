// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package authority holds the protocol roles and their two-step handover.
package authority

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/abachi/vms/abachivm/state"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidRole         = errors.New("invalid role")
	ErrImmediateNotAllowed = errors.New("immediate handover is only allowed for the vault role")

	prefixHolder  = []byte("holder:")
	prefixPending = []byte("pending:")
)

// Role identifies one of the protocol roles.
type Role uint8

const (
	Governor Role = iota
	Guardian
	Policy
	Vault

	numRoles
)

func (r Role) String() string {
	switch r {
	case Governor:
		return "governor"
	case Guardian:
		return "guardian"
	case Policy:
		return "policy"
	case Vault:
		return "vault"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r < numRoles
}

// ParseRole maps a role name to its Role.
func ParseRole(s string) (Role, error) {
	for r := Governor; r < numRoles; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Registry stores the current and pending holder of every role. Dependents
// query it on every privileged call and never cache role identities.
type Registry struct {
	address ids.ShortID
	store   *state.Store
	db      database.Database
	log     log.Logger
}

// New returns the registry persisted in [store]. On first use the four holders
// are written; all must be non-empty.
func New(
	address ids.ShortID,
	store *state.Store,
	logger log.Logger,
	governor, guardian, policy, vault ids.ShortID,
) (*Registry, error) {
	r := &Registry{
		address: address,
		store:   store,
		db:      store.Scope([]byte("authority")),
		log:     logger,
	}

	holders := [numRoles]ids.ShortID{governor, guardian, policy, vault}
	err := store.Atomic(func() error {
		for role, holder := range holders {
			if holder == ids.ShortEmpty {
				return fmt.Errorf("%w: %s", ErrInvalidAddress, Role(role))
			}
			if err := state.PutShortID(r.db, roleKey(prefixHolder, Role(role)), holder); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Load returns a registry over already initialized state.
func Load(address ids.ShortID, store *state.Store, logger log.Logger) *Registry {
	return &Registry{
		address: address,
		store:   store,
		db:      store.Scope([]byte("authority")),
		log:     logger,
	}
}

// Address of the registry.
func (r *Registry) Address() ids.ShortID {
	return r.address
}

func roleKey(prefix []byte, role Role) []byte {
	return state.Key(prefix, []byte{byte(role)})
}

// Holder returns the current holder of [role].
func (r *Registry) Holder(role Role) (ids.ShortID, error) {
	if !role.Valid() {
		return ids.ShortEmpty, ErrInvalidRole
	}
	return state.GetShortID(r.db, roleKey(prefixHolder, role))
}

// Pending returns the staged successor of [role], if any.
func (r *Registry) Pending(role Role) (ids.ShortID, error) {
	if !role.Valid() {
		return ids.ShortEmpty, ErrInvalidRole
	}
	return state.GetShortID(r.db, roleKey(prefixPending, role))
}

func (r *Registry) Governor() (ids.ShortID, error) { return r.Holder(Governor) }
func (r *Registry) Guardian() (ids.ShortID, error) { return r.Holder(Guardian) }
func (r *Registry) Policy() (ids.ShortID, error) { return r.Holder(Policy) }
func (r *Registry) Vault() (ids.ShortID, error) { return r.Holder(Vault) }

// PushRole nominates [candidate] for [role]. Only the current holder may push.
// With [effectiveImmediately] the candidate takes over at once, which is only
// permitted for the vault.
func (r *Registry) PushRole(caller ids.ShortID, role Role, candidate ids.ShortID, effectiveImmediately bool) error {
	return r.store.Atomic(func() error {
		if err := r.require(caller, role); err != nil {
			return err
		}
		if candidate == ids.ShortEmpty {
			return ErrInvalidAddress
		}
		if effectiveImmediately && role != Vault {
			return ErrImmediateNotAllowed
		}

		if effectiveImmediately {
			if err := state.PutShortID(r.db, roleKey(prefixHolder, role), candidate); err != nil {
				return err
			}
			if err := r.db.Delete(roleKey(prefixPending, role)); err != nil {
				return err
			}
		} else if err := state.PutShortID(r.db, roleKey(prefixPending, role), candidate); err != nil {
			return err
		}

		r.log.Info("role pushed",
			log.Stringer("role", role),
			log.Stringer("from", caller),
			log.Stringer("to", candidate),
			log.Bool("immediate", effectiveImmediately),
		)
		return r.store.Emit(r.address, "RolePushed",
			"role", role.String(),
			"from", caller.String(),
			"to", candidate.String(),
			"immediate", strconv.FormatBool(effectiveImmediately),
		)
	})
}

// PullRole lets the staged candidate accept [role].
func (r *Registry) PullRole(caller ids.ShortID, role Role) error {
	return r.store.Atomic(func() error {
		pending, err := r.Pending(role)
		if err != nil {
			return err
		}
		if pending == ids.ShortEmpty || pending != caller {
			return fmt.Errorf("%w: %s is not the pending %s", ErrUnauthorized, caller, role)
		}

		previous, err := r.Holder(role)
		if err != nil {
			return err
		}
		if err := state.PutShortID(r.db, roleKey(prefixHolder, role), caller); err != nil {
			return err
		}
		if err := r.db.Delete(roleKey(prefixPending, role)); err != nil {
			return err
		}

		r.log.Info("role pulled",
			log.Stringer("role", role),
			log.Stringer("from", previous),
			log.Stringer("to", caller),
		)
		return r.store.Emit(r.address, "RolePulled",
			"role", role.String(),
			"from", previous.String(),
			"to", caller.String(),
		)
	})
}

// require fails unless [caller] currently holds [role].
func (r *Registry) require(caller ids.ShortID, role Role) error {
	holder, err := r.Holder(role)
	if err != nil {
		return err
	}
	if caller == ids.ShortEmpty || caller != holder {
		return fmt.Errorf("%w: %s is not the %s", ErrUnauthorized, caller, role)
	}
	return nil
}

func (r *Registry) OnlyGovernor(caller ids.ShortID) error { return r.require(caller, Governor) }
func (r *Registry) OnlyGuardian(caller ids.ShortID) error { return r.require(caller, Guardian) }
func (r *Registry) OnlyPolicy(caller ids.ShortID) error { return r.require(caller, Policy) }
func (r *Registry) OnlyVault(caller ids.ShortID) error { return r.require(caller, Vault) }

// OnlyGovernorOrGuardian accepts either role.
func (r *Registry) OnlyGovernorOrGuardian(caller ids.ShortID) error {
	if err := r.require(caller, Governor); err == nil {
		return nil
	}
	return r.require(caller, Guardian)
}
