// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vm defines the contract between a virtual machine and the process
// hosting it.
package vm

import (
	"context"
	"net/http"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

// VM defines the interface for a virtual machine
type VM interface {
	// Initialize initializes the VM with the given configuration
	Initialize(context.Context, *Config) error

	// Shutdown cleanly stops the VM
	Shutdown(context.Context) error

	// Version returns the VM version
	Version(context.Context) (string, error)

	// SetState transitions the VM to the specified state
	SetState(context.Context, State) error

	// CreateHandlers returns the HTTP handlers keyed by path suffix
	CreateHandlers(context.Context) (map[string]http.Handler, error)

	// HealthCheck reports the VM's health
	HealthCheck(context.Context) (interface{}, error)
}

// Config is what the host hands to a VM at initialization.
type Config struct {
	DB           database.Database
	GenesisBytes []byte
	ConfigBytes  []byte

	// Metrics receives the VM's metrics. Nil disables them.
	Metrics metric.Registry

	// ToEngine is notified when the VM wants a block built. It may be nil.
	ToEngine chan<- Message
}

// Factory creates new VM instances.
type Factory interface {
	// New creates a new VM instance with the given logger.
	New(log.Logger) (VM, error)
}
