// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package math provides overflow checked arithmetic on epoch counters and
// timestamps. Token amounts use uint256 directly.
package math

import "errors"

var (
	ErrOverflow  = errors.New("overflow")
	ErrUnderflow = errors.New("underflow")
)

type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Add returns a + b, or ErrOverflow if the sum wraps.
func Add[T Unsigned](a, b T) (T, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b, or ErrUnderflow if b > a.
func Sub[T Unsigned](a, b T) (T, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}
