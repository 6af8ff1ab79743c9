// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/luxfi/abachi/utils/json"
)

// Status of a transaction as seen by the VM.
type Status string

const (
	Unknown    Status = "Unknown"
	Processing Status = "Processing"
	Accepted   Status = "Accepted"
	Rejected   Status = "Rejected"
)

// Receipt records the outcome of a processed transaction.
type Receipt struct {
	Status Status      `json:"status"`
	Type   string      `json:"type,omitempty"`
	Height json.Uint64 `json:"height"`
	// Result is the operation's return value, if any.
	Result string `json:"result,omitempty"`
	// Reason is set on rejection.
	Reason string `json:"reason,omitempty"`
}

// FormatResult renders an executor result for a receipt.
func FormatResult(result any) string {
	switch r := result.(type) {
	case nil:
		return ""
	case *uint256.Int:
		if r == nil {
			return ""
		}
		return r.Dec()
	case bool:
		return strconv.FormatBool(r)
	case int:
		return strconv.Itoa(r)
	default:
		return fmt.Sprint(r)
	}
}
