// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package executor

import "github.com/kalepool/kalepool/metrics"

var (
	metricScheduleDepth     = metrics.LazyLoadGauge("executor_schedule_depth")
	metricWorkPhaseDuration = metrics.LazyLoadHistogram("executor_work_phase_duration_ms", metrics.Bucket2m)
	metricWorkCount         = metrics.LazyLoadCounterVec("executor_work_count", []string{"status"})
	metricWorkRecoveries    = metrics.LazyLoadCounter("executor_work_recovery_count")
	metricHarvestCount      = metrics.LazyLoadCounterVec("executor_harvest_count", []string{"status"})
)
