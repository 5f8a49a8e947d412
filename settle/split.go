// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settle

import (
	"math"

	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/kale"
)

// Split is the three-way division of an exit's gross rewards. All shares
// are integer stroops; the division conserves the total exactly.
type Split struct {
	Total       kale.Stroops
	PlatformFee kale.Stroops
	FarmerShare kale.Stroops
	PoolerShare kale.Stroops
}

// SplitRewards divides total in fixed-point basis-point arithmetic:
// the platform fee comes off the gross, the farmer's split applies to the
// net, the pooler takes the remainder. Both divisions round down, so the
// remainders accrue to the pooler share and the sum stays exact.
func SplitRewards(total kale.Stroops, platformFeeBps, farmerSplitBps int) (*Split, error) {
	if total < 0 {
		return nil, errors.Errorf("negative reward total %d", total)
	}
	if total > math.MaxInt64/kale.RateScale {
		return nil, errors.Errorf("reward total %d exceeds the fixed-point range", total)
	}
	if platformFeeBps < 0 || platformFeeBps > kale.RateScale {
		return nil, errors.Errorf("platform fee %d bps out of range", platformFeeBps)
	}
	if farmerSplitBps < 0 || farmerSplitBps > kale.RateScale {
		return nil, errors.Errorf("farmer split %d bps out of range", farmerSplitBps)
	}

	fee := total * kale.Stroops(platformFeeBps) / kale.RateScale
	net := total - fee
	farmer := net * kale.Stroops(farmerSplitBps) / kale.RateScale
	pooler := net - farmer

	s := &Split{
		Total:       total,
		PlatformFee: fee,
		FarmerShare: farmer,
		PoolerShare: pooler,
	}
	if !s.Balanced() {
		return nil, errors.Errorf("split of %d does not conserve: fee %d + farmer %d + pooler %d",
			total, fee, farmer, pooler)
	}
	return s, nil
}

// Balanced reports whether the shares are non-negative and sum to the total.
func (s *Split) Balanced() bool {
	if s.PlatformFee < 0 || s.FarmerShare < 0 || s.PoolerShare < 0 {
		return false
	}
	return s.PlatformFee+s.FarmerShare+s.PoolerShare == s.Total
}
