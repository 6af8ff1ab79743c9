// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoundTrip(t *testing.T) {
	require := require.New(t)

	g := Default()
	require.NoError(g.Verify())

	b, err := g.Bytes()
	require.NoError(err)

	parsed, err := Parse(b)
	require.NoError(err)
	require.Equal(g.Addresses, parsed.Addresses)
	require.Equal(g.Roles, parsed.Roles)
	require.Equal(g.Epoch, parsed.Epoch)
	require.Equal(g.Cap, parsed.Cap)
	require.Equal(g.Permissions, parsed.Permissions)
	require.Len(parsed.Assets, 2)
	require.Equal(g.Assets[0].Allocations[0].Amount, parsed.Assets[0].Allocations[0].Amount)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Genesis)
		expectedErr error
	}{
		{
			name:        "missing component",
			mutate:      func(g *Genesis) { g.Addresses.Treasury = ids.ShortEmpty },
			expectedErr: ErrInvalidGenesis,
		},
		{
			name:        "asset shares a component address",
			mutate:      func(g *Genesis) { g.Assets[0].Address = g.Addresses.Base },
			expectedErr: ErrDuplicateAddress,
		},
		{
			name:        "missing role",
			mutate:      func(g *Genesis) { g.Roles.Guardian = ids.ShortEmpty },
			expectedErr: ErrInvalidGenesis,
		},
		{
			name:        "zero epoch length",
			mutate:      func(g *Genesis) { g.Epoch.Length = 0 },
			expectedErr: ErrInvalidGenesis,
		},
		{
			name:        "missing index",
			mutate:      func(g *Genesis) { g.Index = nil },
			expectedErr: ErrInvalidGenesis,
		},
		{
			name:        "unknown permission class",
			mutate:      func(g *Genesis) { g.Permissions[0].Class = "janitor" },
			expectedErr: ErrInvalidGenesis,
		},
		{
			name:        "recipient without address",
			mutate:      func(g *Genesis) { g.Recipients[0].Address = ids.ShortEmpty },
			expectedErr: ErrInvalidGenesis,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := Default()
			test.mutate(g)
			require.ErrorIs(t, g.Verify(), test.expectedErr)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("{"))
	require.ErrorIs(t, err, ErrInvalidGenesis)
}
