// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"strings"
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/abachi/utils/metric/metrictest"
	"github.com/luxfi/abachi/vms/abachivm/txs"
)

func newTx(t *testing.T, payload any) *txs.Tx {
	tx, err := txs.New(txs.Rebase, ids.GenerateTestShortID(), payload)
	require.NoError(t, err)
	return tx
}

func TestMempoolFIFO(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	m, err := New("abachi", 3, registry)
	require.NoError(err)

	tx0, tx1, tx2 := newTx(t, nil), newTx(t, nil), newTx(t, nil)
	require.NoError(m.Add(tx0))
	require.NoError(m.Add(tx1))
	require.NoError(m.Add(tx2))
	require.Equal(3, m.Len())
	require.True(m.Has(tx1.ID()))
	require.InDelta(3, metrictest.Value(t, registry, "abachi_mempool_num_txs", nil), 0)

	size := len(tx0.Bytes()) + len(tx1.Bytes()) + len(tx2.Bytes())
	require.Equal(size, m.BytesUsed())
	require.InDelta(size, metrictest.Value(t, registry, "abachi_mempool_bytes_used", nil), 0)

	require.Equal([]*txs.Tx{tx0, tx1}, m.PopN(2))
	require.False(m.Has(tx0.ID()))
	require.Equal(len(tx2.Bytes()), m.BytesUsed())

	require.Equal([]*txs.Tx{tx2}, m.PopN(5))
	require.Empty(m.PopN(1))
	require.Zero(m.BytesUsed())
	require.InDelta(0, metrictest.Value(t, registry, "abachi_mempool_num_txs", nil), 0)
}

func TestMempoolAddErrors(t *testing.T) {
	require := require.New(t)

	m, err := New("abachi", 1, nil)
	require.NoError(err)

	tx := newTx(t, nil)
	require.NoError(m.Add(tx))
	require.ErrorIs(m.Add(tx), ErrDuplicateTx)
	require.ErrorIs(m.Add(newTx(t, nil)), ErrMempoolFull)

	require.Equal(1, m.Clear())
	require.Zero(m.Len())
	require.False(m.Has(tx.ID()))

	large := newTx(t, map[string]string{"memo": strings.Repeat("a", MaxTxSize)})
	require.ErrorIs(m.Add(large), ErrTxTooLarge)
}
