// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package discoverer

import "github.com/kalepool/kalepool/metrics"

var (
	metricBlockCount         = metrics.LazyLoadCounterVec("discoverer_block_count", []string{"result"})
	metricQueueDepth         = metrics.LazyLoadGauge("discoverer_queue_depth")
	metricPlantCount         = metrics.LazyLoadCounterVec("discoverer_plant_count", []string{"status"})
	metricPlantPhaseDuration = metrics.LazyLoadHistogram("discoverer_plant_phase_duration_ms", metrics.Bucket2m)
	metricNotifyCount        = metrics.LazyLoadCounterVec("discoverer_notify_count", []string{"status"})
	metricNotifyRetries      = metrics.LazyLoadCounter("discoverer_notify_retry_count")
	metricFundingChecks      = metrics.LazyLoadCounter("discoverer_funding_check_count")
)
