// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txs defines the transaction envelope and dispatches transactions to
// the protocol components.
package txs

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/ids"
)

var (
	ErrInvalidTx     = errors.New("invalid transaction")
	ErrUnknownTxType = errors.New("unknown transaction type")
)

// Tx is one protocol action. The host authenticates Sender before the
// transaction reaches the VM.
type Tx struct {
	Type    string          `json:"type"`
	Sender  ids.ShortID     `json:"sender"`
	Payload json.RawMessage `json:"payload,omitempty"`

	bytes []byte
	id    ids.ID
}

// New builds a transaction of [typ] carrying [payload].
func New(typ string, sender ids.ShortID, payload any) (*Tx, error) {
	tx := &Tx{
		Type:   typ,
		Sender: sender,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
		}
		tx.Payload = raw
	}
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.initialize(b); err != nil {
		return nil, err
	}
	return tx, nil
}

// Parse decodes a transaction from [b]. The ID is computed over [b].
func Parse(b []byte) (*Tx, error) {
	tx := &Tx{}
	if err := json.Unmarshal(b, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	if err := tx.initialize(b); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *Tx) initialize(b []byte) error {
	switch {
	case tx.Type == "" || !strings.Contains(tx.Type, "."):
		return fmt.Errorf("%w: malformed type %q", ErrInvalidTx, tx.Type)
	case tx.Sender == ids.ShortEmpty:
		return fmt.Errorf("%w: missing sender", ErrInvalidTx)
	}
	tx.bytes = b
	tx.id = ids.ID(sha256.Sum256(b))
	return nil
}

func (tx *Tx) ID() ids.ID { return tx.id }

func (tx *Tx) Bytes() []byte { return tx.bytes }

// Component is the part of the type before the dot.
func (tx *Tx) Component() string {
	component, _, _ := strings.Cut(tx.Type, ".")
	return component
}
