// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrictest reads gathered series back out of a registry.
package metrictest

import (
	"testing"

	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"
)

// Value returns the value of the series [name] whose labels include every pair
// in [labels]. A series that was never written reads as zero.
func Value(t testing.TB, gatherer metric.Gatherer, name string, labels metric.Labels) float64 {
	t.Helper()

	families, err := gatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.Name != name {
			continue
		}
		for _, m := range family.Metrics {
			if matches(m.Labels, labels) {
				return m.Value.Value
			}
		}
	}
	return 0
}

func matches(pairs []metric.LabelPair, labels metric.Labels) bool {
	found := 0
	for _, pair := range pairs {
		if want, ok := labels[pair.Name]; ok {
			if want != pair.Value {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}
