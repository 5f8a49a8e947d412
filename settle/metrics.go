// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settle

import "github.com/kalepool/kalepool/metrics"

var (
	metricExits          = metrics.LazyLoadCounterVec("settle_exit_count", []string{"status"})
	metricPayoutRetries  = metrics.LazyLoadCounter("settle_payout_retry_count")
	metricSettleDuration = metrics.LazyLoadHistogram("settle_exit_duration_ms", metrics.Bucket2m)
)
