// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package authority

import (
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/abachi/vms/abachivm/state"
)

type testRoles struct {
	governor, guardian, policy, vault ids.ShortID
}

func newTestRegistry(t *testing.T) (*Registry, *state.Store, testRoles) {
	roles := testRoles{
		governor: ids.GenerateTestShortID(),
		guardian: ids.GenerateTestShortID(),
		policy:   ids.GenerateTestShortID(),
		vault:    ids.GenerateTestShortID(),
	}
	store := state.New(memdb.New(), log.NewNoOpLogger())
	r, err := New(ids.GenerateTestShortID(), store, log.NewNoOpLogger(), roles.governor, roles.guardian, roles.policy, roles.vault)
	require.NoError(t, err)
	return r, store, roles
}

func TestNewRejectsEmptyHolder(t *testing.T) {
	store := state.New(memdb.New(), log.NewNoOpLogger())
	a := ids.GenerateTestShortID()

	tests := []struct {
		name                              string
		governor, guardian, policy, vault ids.ShortID
	}{
		{"governor", ids.ShortEmpty, a, a, a},
		{"guardian", a, ids.ShortEmpty, a, a},
		{"policy", a, a, ids.ShortEmpty, a},
		{"vault", a, a, a, ids.ShortEmpty},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(ids.GenerateTestShortID(), store, log.NewNoOpLogger(), test.governor, test.guardian, test.policy, test.vault)
			require.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestHolders(t *testing.T) {
	require := require.New(t)

	r, _, roles := newTestRegistry(t)

	governor, err := r.Governor()
	require.NoError(err)
	require.Equal(roles.governor, governor)

	guardian, err := r.Guardian()
	require.NoError(err)
	require.Equal(roles.guardian, guardian)

	policy, err := r.Policy()
	require.NoError(err)
	require.Equal(roles.policy, policy)

	vault, err := r.Vault()
	require.NoError(err)
	require.Equal(roles.vault, vault)

	_, err = r.Holder(Role(9))
	require.ErrorIs(err, ErrInvalidRole)
}

func TestTwoStepHandover(t *testing.T) {
	require := require.New(t)

	r, store, roles := newTestRegistry(t)
	next := ids.GenerateTestShortID()

	require.NoError(r.PushRole(roles.governor, Governor, next, false))

	governor, err := r.Governor()
	require.NoError(err)
	require.Equal(roles.governor, governor, "push must not take effect before pull")

	pending, err := r.Pending(Governor)
	require.NoError(err)
	require.Equal(next, pending)

	err = r.PullRole(ids.GenerateTestShortID(), Governor)
	require.ErrorIs(err, ErrUnauthorized)

	require.NoError(r.PullRole(next, Governor))

	governor, err = r.Governor()
	require.NoError(err)
	require.Equal(next, governor)

	pending, err = r.Pending(Governor)
	require.NoError(err)
	require.Equal(ids.ShortEmpty, pending)

	// the previous governor lost its rights
	require.ErrorIs(r.OnlyGovernor(roles.governor), ErrUnauthorized)
	require.NoError(r.OnlyGovernor(next))

	events, err := store.Events(0, 10)
	require.NoError(err)
	require.Len(events, 2)
	require.Equal("RolePushed", events[0].Name)
	require.Equal(next.String(), events[0].Attr("to"))
	require.Equal("RolePulled", events[1].Name)
	require.Equal(roles.governor.String(), events[1].Attr("from"))
}

func TestPushRequiresCurrentHolder(t *testing.T) {
	require := require.New(t)

	r, _, roles := newTestRegistry(t)
	next := ids.GenerateTestShortID()

	require.ErrorIs(r.PushRole(roles.guardian, Policy, next, false), ErrUnauthorized)
	require.ErrorIs(r.PushRole(roles.governor, Guardian, next, false), ErrUnauthorized)
	require.ErrorIs(r.PushRole(roles.policy, Policy, ids.ShortEmpty, false), ErrInvalidAddress)
	require.NoError(r.PushRole(roles.policy, Policy, next, false))
}

func TestImmediateOnlyForVault(t *testing.T) {
	require := require.New(t)

	r, _, roles := newTestRegistry(t)
	treasury := ids.GenerateTestShortID()

	require.ErrorIs(r.PushRole(roles.governor, Governor, treasury, true), ErrImmediateNotAllowed)

	require.NoError(r.PushRole(roles.vault, Vault, treasury, true))
	vault, err := r.Vault()
	require.NoError(err)
	require.Equal(treasury, vault)
	require.NoError(r.OnlyVault(treasury))
}

func TestPullWithoutPending(t *testing.T) {
	r, _, roles := newTestRegistry(t)
	require.ErrorIs(t, r.PullRole(roles.governor, Governor), ErrUnauthorized)
}

func TestGovernorOrGuardian(t *testing.T) {
	require := require.New(t)

	r, _, roles := newTestRegistry(t)
	require.NoError(r.OnlyGovernorOrGuardian(roles.governor))
	require.NoError(r.OnlyGovernorOrGuardian(roles.guardian))
	require.ErrorIs(r.OnlyGovernorOrGuardian(roles.policy), ErrUnauthorized)
}

func TestParseRole(t *testing.T) {
	require := require.New(t)

	for role := Governor; role < numRoles; role++ {
		parsed, err := ParseRole(role.String())
		require.NoError(err)
		require.Equal(role, parsed)
	}
	_, err := ParseRole("owner")
	require.ErrorIs(err, ErrInvalidRole)
}
