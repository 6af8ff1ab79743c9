// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers collects errors across a sequence of registrations.
package wrappers

// Errs keeps the first error passed to Add.
type Errs struct {
	Err error
}

func (errs *Errs) Errored() bool {
	return errs.Err != nil
}

// Add records the first non-nil error among [errors]. Later errors are
// dropped once one has been recorded.
func (errs *Errs) Add(errors ...error) {
	if errs.Err != nil {
		return
	}
	for _, err := range errors {
		if err != nil {
			errs.Err = err
			return
		}
	}
}
