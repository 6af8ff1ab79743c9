// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the Abachi VM.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/abachi/vms/abachivm/staking"
)

var (
	ErrInvalidConfig = errors.New("invalid config")

	errZeroCacheSize    = errors.New("txCacheSize must be positive")
	errZeroTxsPerBlock  = errors.New("maxTxsPerBlock must be positive")
	errZeroEventsLimit  = errors.New("maxEventsPerQuery must be positive")
	errZeroBlockPeriod  = errors.New("blockInterval must be positive")
	errZeroMempoolLimit = errors.New("mempoolSize must be positive")
)

// Config contains configuration parameters for the Abachi VM.
type Config struct {
	// RebasePolicy is "single" (one epoch per rebase) or "catchup"
	RebasePolicy staking.Policy `json:"rebasePolicy"`

	// TxCacheSize is the number of processed transaction statuses kept in memory
	TxCacheSize int `json:"txCacheSize"`
	// MempoolSize bounds the number of pending transactions
	MempoolSize int `json:"mempoolSize"`

	// Block configuration
	BlockInterval  time.Duration `json:"blockInterval"`
	MaxTxsPerBlock int           `json:"maxTxsPerBlock"`

	// MaxEventsPerQuery caps the page size of GetEvents
	MaxEventsPerQuery int `json:"maxEventsPerQuery"`

	MetricsEnabled bool `json:"metricsEnabled"`
	// IndexEvents logs every committed event at debug level
	IndexEvents bool `json:"indexEvents"`
}

// DefaultConfig returns the default configuration for the Abachi VM.
func DefaultConfig() Config {
	return Config{
		RebasePolicy: staking.PolicySingle,

		TxCacheSize: 4096,
		MempoolSize: 1024,

		BlockInterval:  time.Second,
		MaxTxsPerBlock: 256,

		MaxEventsPerQuery: 1000,

		MetricsEnabled: true,
		IndexEvents:    false,
	}
}

// ParseConfig overlays the JSON in [b] on the defaults. Empty input yields the
// defaults.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	if len(b) > 0 {
		if err := json.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var err error
	switch {
	case !c.RebasePolicy.Valid():
		err = fmt.Errorf("%w: %q", staking.ErrUnknownPolicy, c.RebasePolicy)
	case c.TxCacheSize <= 0:
		err = errZeroCacheSize
	case c.MempoolSize <= 0:
		err = errZeroMempoolLimit
	case c.BlockInterval <= 0:
		err = errZeroBlockPeriod
	case c.MaxTxsPerBlock <= 0:
		err = errZeroTxsPerBlock
	case c.MaxEventsPerQuery <= 0:
		err = errZeroEventsLimit
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
