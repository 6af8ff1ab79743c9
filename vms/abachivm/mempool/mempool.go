// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool holds issued transactions until a block includes them.
package mempool

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/metric"

	"github.com/luxfi/abachi/vms/abachivm/txs"
)

// MaxTxSize bounds a single encoded transaction.
const MaxTxSize = 64 * 1024

var (
	ErrDuplicateTx = errors.New("duplicate transaction")
	ErrMempoolFull = errors.New("mempool full")
	ErrTxTooLarge  = errors.New("transaction too large")
)

// Mempool is a FIFO of pending transactions, unique by ID. It is not safe for
// concurrent use; the VM serializes access.
type Mempool struct {
	maxTxs    int
	txs       []*txs.Tx
	ids       map[ids.ID]struct{}
	bytesUsed int
	metrics   *metrics
}

// New returns a mempool holding at most [maxTxs] transactions. A nil
// [registerer] disables metrics.
func New(namespace string, maxTxs int, registerer metric.Registerer) (*Mempool, error) {
	m := &Mempool{
		maxTxs: maxTxs,
		ids:    make(map[ids.ID]struct{}),
	}
	if registerer != nil {
		var err error
		m.metrics, err = newMetrics(namespace, registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register mempool metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Mempool) Add(tx *txs.Tx) error {
	txID := tx.ID()
	switch size := len(tx.Bytes()); {
	case m.Has(txID):
		return fmt.Errorf("%w: %s", ErrDuplicateTx, txID)
	case size > MaxTxSize:
		return fmt.Errorf("%w: %d > %d bytes", ErrTxTooLarge, size, MaxTxSize)
	case len(m.txs) >= m.maxTxs:
		return ErrMempoolFull
	}

	m.txs = append(m.txs, tx)
	m.ids[txID] = struct{}{}
	m.bytesUsed += len(tx.Bytes())
	m.metrics.update(len(m.txs), m.bytesUsed)
	return nil
}

func (m *Mempool) Has(txID ids.ID) bool {
	_, ok := m.ids[txID]
	return ok
}

// PopN removes and returns up to [n] of the oldest transactions.
func (m *Mempool) PopN(n int) []*txs.Tx {
	n = min(n, len(m.txs))
	popped := make([]*txs.Tx, n)
	copy(popped, m.txs)
	for _, tx := range popped {
		delete(m.ids, tx.ID())
		m.bytesUsed -= len(tx.Bytes())
	}
	m.txs = m.txs[n:]
	m.metrics.update(len(m.txs), m.bytesUsed)
	return popped
}

func (m *Mempool) Len() int {
	return len(m.txs)
}

func (m *Mempool) BytesUsed() int {
	return m.bytesUsed
}

// Clear drops every pending transaction and returns how many were dropped.
func (m *Mempool) Clear() int {
	dropped := len(m.txs)
	m.txs = nil
	clear(m.ids)
	m.bytesUsed = 0
	m.metrics.update(0, 0)
	return dropped
}
