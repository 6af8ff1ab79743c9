// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vm

// Message signals from VM to the host's block builder
type Message struct {
	Type MessageType
}

// MessageType identifies the message kind
type MessageType uint32

const (
	// PendingTxs indicates there are pending transactions to process
	PendingTxs MessageType = iota
)

func (m MessageType) String() string {
	switch m {
	case PendingTxs:
		return "PendingTxs"
	default:
		return "Unknown"
	}
}
