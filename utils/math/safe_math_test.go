// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	require := require.New(t)

	sum, err := Add[uint64](28800, 1_700_000_000)
	require.NoError(err)
	require.Equal(uint64(1_700_028_800), sum)

	_, err = Add[uint64](math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)

	_, err = Add[uint8](200, 56)
	require.ErrorIs(err, ErrOverflow)
}

func TestSub(t *testing.T) {
	require := require.New(t)

	diff, err := Sub[uint64](10, 3)
	require.NoError(err)
	require.Equal(uint64(7), diff)

	_, err = Sub[uint64](3, 10)
	require.ErrorIs(err, ErrUnderflow)
}
