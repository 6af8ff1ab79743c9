// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes protocol health as metric series.
package metrics

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/metric"

	safemath "github.com/luxfi/abachi/utils/math"
	utilmetric "github.com/luxfi/abachi/utils/metric"
	"github.com/luxfi/abachi/utils/wrappers"
	"github.com/luxfi/abachi/vms/abachivm/protocol"
)

const (
	namespace = "abachi"
	txLabel   = "type"
)

var txLabels = []string{txLabel}

// Metrics tracks processed transactions and protocol level gauges.
type Metrics struct {
	txsAccepted metric.CounterVec
	txsRejected metric.CounterVec
	rebases     metric.Counter
	blocks      metric.Counter

	blockDuration utilmetric.Averager

	epochNumber       metric.Gauge
	index             metric.Gauge
	baseSupply        metric.Gauge
	circulatingSupply metric.Gauge
	wrappedSupply     metric.Gauge
	totalReserves     metric.Gauge
	totalDebt         metric.Gauge

	lastEpoch uint64
}

func New(registry metric.Registry) (*Metrics, error) {
	gauge := func(name, help string) metric.Gauge {
		return metric.NewGauge(metric.GaugeOpts{
			Name: utilmetric.AppendNamespace(namespace, name),
			Help: help,
		})
	}
	m := &Metrics{
		txsAccepted: metric.NewCounterVec(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "txs_accepted"),
			Help: "Number of transactions accepted, by type",
		}, txLabels),
		txsRejected: metric.NewCounterVec(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "txs_rejected"),
			Help: "Number of transactions rejected, by type",
		}, txLabels),
		rebases: metric.NewCounter(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "rebases"),
			Help: "Number of epochs advanced",
		}),
		blocks: metric.NewCounter(metric.CounterOpts{
			Name: utilmetric.AppendNamespace(namespace, "blocks"),
			Help: "Number of blocks processed",
		}),
		blockDuration: utilmetric.NewAverager(
			utilmetric.AppendNamespace(namespace, "block_duration"),
			"time (in ns) spent processing a block",
			registry,
		),
		epochNumber:       gauge("epoch_number", "Current epoch number"),
		index:             gauge("index", "Current elastic ledger index"),
		baseSupply:        gauge("base_supply", "Total supply of the base token"),
		circulatingSupply: gauge("circulating_supply", "Circulating supply of the elastic ledger"),
		wrappedSupply:     gauge("wrapped_supply", "Total supply of the wrapped ledger"),
		totalReserves:     gauge("total_reserves", "Treasury reserves valued in base units"),
		totalDebt:         gauge("total_debt", "Outstanding treasury debt in base units"),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registry.Register(metric.AsCollector(m.txsAccepted)),
		registry.Register(metric.AsCollector(m.txsRejected)),
		registry.Register(metric.AsCollector(m.rebases)),
		registry.Register(metric.AsCollector(m.blocks)),
		registry.Register(metric.AsCollector(m.epochNumber)),
		registry.Register(metric.AsCollector(m.index)),
		registry.Register(metric.AsCollector(m.baseSupply)),
		registry.Register(metric.AsCollector(m.circulatingSupply)),
		registry.Register(metric.AsCollector(m.wrappedSupply)),
		registry.Register(metric.AsCollector(m.totalReserves)),
		registry.Register(metric.AsCollector(m.totalDebt)),
	)
	if errs.Errored() {
		return nil, fmt.Errorf("failed to register metrics: %w", errs.Err)
	}
	return m, nil
}

func (m *Metrics) MarkAccepted(txType string) {
	m.txsAccepted.With(metric.Labels{txLabel: txType}).Inc()
}

func (m *Metrics) MarkRejected(txType string) {
	m.txsRejected.With(metric.Labels{txLabel: txType}).Inc()
}

// MarkBlock records one processed block and the nanoseconds it took.
func (m *Metrics) MarkBlock(nanos int64) {
	m.blocks.Inc()
	m.blockDuration.Observe(float64(nanos))
}

// Observe refreshes the protocol gauges from [p]. The rebase counter grows by
// the number of epochs advanced since the last observation.
func (m *Metrics) Observe(p *protocol.Protocol) error {
	epoch, err := p.Staking.Epoch()
	if err != nil {
		return err
	}
	if delta, err := safemath.Sub(epoch.Number, m.lastEpoch); m.lastEpoch != 0 && err == nil {
		m.rebases.Add(float64(delta))
	}
	m.lastEpoch = epoch.Number
	m.epochNumber.Set(float64(epoch.Number))

	type reading struct {
		gauge metric.Gauge
		read  func() (*uint256.Int, error)
	}
	for _, r := range []reading{
		{m.index, p.Elastic.Index},
		{m.baseSupply, p.Base.TotalSupply},
		{m.circulatingSupply, p.Elastic.CirculatingSupply},
		{m.wrappedSupply, p.Wrapped.TotalSupply},
		{m.totalReserves, p.Treasury.TotalReserves},
		{m.totalDebt, p.Treasury.TotalDebt},
	} {
		v, err := r.read()
		if err != nil {
			return err
		}
		r.gauge.Set(toFloat(v))
	}
	return nil
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
