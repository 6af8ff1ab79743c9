// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"github.com/luxfi/metric"

	utilmetric "github.com/luxfi/abachi/utils/metric"
	"github.com/luxfi/abachi/utils/wrappers"
)

type metrics struct {
	numTxs    metric.Gauge
	bytesUsed metric.Gauge
}

func newMetrics(namespace string, registerer metric.Registerer) (*metrics, error) {
	m := &metrics{
		numTxs: metric.NewGauge(metric.GaugeOpts{
			Name: utilmetric.AppendNamespace(namespace, "mempool_num_txs"),
			Help: "Number of transactions in the mempool",
		}),
		bytesUsed: metric.NewGauge(metric.GaugeOpts{
			Name: utilmetric.AppendNamespace(namespace, "mempool_bytes_used"),
			Help: "Number of bytes used by the mempool",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.numTxs)),
		registerer.Register(metric.AsCollector(m.bytesUsed)),
	)
	return m, errs.Err
}

func (m *metrics) update(numTxs, bytesUsed int) {
	if m == nil {
		return
	}
	m.numTxs.Set(float64(numTxs))
	m.bytesUsed.Set(float64(bytesUsed))
}
