// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package miner

import "github.com/kalepool/kalepool/metrics"

var (
	metricSearchDuration = metrics.LazyLoadHistogram("miner_search_duration_ms", metrics.Bucket2m)
	metricSearchFailed   = metrics.LazyLoad(func() metrics.CountVecMeter {
		return metrics.CounterVec("miner_search_failed_count", []string{"reason"})
	})
)
