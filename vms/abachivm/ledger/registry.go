// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/ids"
)

var ErrUnknownToken = errors.New("unknown token")

// Registry resolves token addresses to ledgers.
type Registry struct {
	tokens map[ids.ShortID]Token
}

func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[ids.ShortID]Token),
	}
}

// Register adds [token]. Registering the same address twice fails.
func (r *Registry) Register(token Token) error {
	addr := token.Address()
	if addr == ids.ShortEmpty {
		return ErrInvalidAddress
	}
	if _, ok := r.tokens[addr]; ok {
		return fmt.Errorf("token %s already registered", addr)
	}
	r.tokens[addr] = token
	return nil
}

// Get returns the token at [addr].
func (r *Registry) Get(addr ids.ShortID) (Token, error) {
	token, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr)
	}
	return token, nil
}

// Addresses returns all registered addresses in ascending byte order.
func (r *Registry) Addresses() []ids.ShortID {
	addrs := make([]ids.ShortID, 0, len(r.tokens))
	for addr := range r.tokens {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}
