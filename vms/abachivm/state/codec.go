// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

var ErrStateCorrupted = errors.New("state corrupted")

// Reader is the read half of a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Writer is the write half of a key-value store.
type Writer interface {
	Put(key []byte, value []byte) error
}

// Key concatenates a prefix and any number of parts into a fresh key.
func Key(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Uint64Key encodes [v] big-endian so keys sort numerically.
func Uint64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func get(db Reader, key []byte) ([]byte, bool, error) {
	value, err := db.Get(key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// GetUint256 returns the amount stored at [key], or zero.
func GetUint256(db Reader, key []byte) (*uint256.Int, error) {
	value, ok, err := get(db, key)
	if err != nil || !ok {
		return new(uint256.Int), err
	}
	if len(value) != 32 {
		return nil, fmt.Errorf("%w: amount of %d bytes", ErrStateCorrupted, len(value))
	}
	return new(uint256.Int).SetBytes(value), nil
}

// PutUint256 stores [v] as a 32 byte big-endian word.
func PutUint256(db Writer, key []byte, v *uint256.Int) error {
	b := v.Bytes32()
	return db.Put(key, b[:])
}

// GetUint64 returns the integer stored at [key], or zero.
func GetUint64(db Reader, key []byte) (uint64, error) {
	value, ok, err := get(db, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: integer of %d bytes", ErrStateCorrupted, len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

func PutUint64(db Writer, key []byte, v uint64) error {
	return db.Put(key, Uint64Key(v))
}

// GetBool returns the flag stored at [key], or false.
func GetBool(db Reader, key []byte) (bool, error) {
	value, ok, err := get(db, key)
	if err != nil || !ok {
		return false, err
	}
	return len(value) == 1 && value[0] == 1, nil
}

func PutBool(db Writer, key []byte, v bool) error {
	b := []byte{0}
	if v {
		b[0] = 1
	}
	return db.Put(key, b)
}

// GetShortID returns the address stored at [key], or ids.ShortEmpty.
func GetShortID(db Reader, key []byte) (ids.ShortID, error) {
	value, ok, err := get(db, key)
	if err != nil || !ok {
		return ids.ShortEmpty, err
	}
	if len(value) != len(ids.ShortEmpty) {
		return ids.ShortEmpty, fmt.Errorf("%w: address of %d bytes", ErrStateCorrupted, len(value))
	}
	var addr ids.ShortID
	copy(addr[:], value)
	return addr, nil
}

func PutShortID(db Writer, key []byte, addr ids.ShortID) error {
	return db.Put(key, addr[:])
}

// GetJSON decodes the value at [key] into [dst]. It reports whether the key
// existed.
func GetJSON(db Reader, key []byte, dst interface{}) (bool, error) {
	value, ok, err := get(db, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	return true, nil
}

func PutJSON(db Writer, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Put(key, b)
}
