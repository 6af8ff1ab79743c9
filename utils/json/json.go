// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json holds integer types that travel as decimal strings, so
// JavaScript clients never lose precision on epoch numbers and timestamps.
package json

import (
	"fmt"
	"strconv"
)

const Null = "null"

// Uint64 marshals as a quoted decimal. It unmarshals from either a quoted or
// a bare number.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(u), 10)), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == Null {
		return nil
	}
	if unquoted, err := strconv.Unquote(str); err == nil {
		str = unquoted
	}
	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %s: %w", b, err)
	}
	*u = Uint64(val)
	return nil
}
