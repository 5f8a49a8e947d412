// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ops

import (
	"time"

	"github.com/google/uuid"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/pooldb"
)

// JSONBlockOperation is the wire form of a block operation.
type JSONBlockOperation struct {
	ID                 uuid.UUID       `json:"id"`
	BlockIndex         uint32          `json:"blockIndex"`
	Status             pooldb.OpStatus `json:"status"`
	Entropy            string          `json:"entropy"`
	BlockTimestamp     int64           `json:"blockTimestamp"`
	Plantable          bool            `json:"plantable"`
	TotalFarmers       int             `json:"totalFarmers"`
	SuccessfulPlants   int             `json:"successfulPlants"`
	SuccessfulWorks    int             `json:"successfulWorks"`
	SuccessfulHarvests int             `json:"successfulHarvests"`
	TotalStaked        kale.Stroops    `json:"totalStaked"`
	TotalRewards       kale.Stroops    `json:"totalRewards"`
	ErrorMessage       *string         `json:"errorMessage,omitempty"`
	DiscoveredAt       time.Time       `json:"discoveredAt"`
	PlantCompletedAt   *time.Time      `json:"plantCompletedAt,omitempty"`
	WorkCompletedAt    *time.Time      `json:"workCompletedAt,omitempty"`
}

func convertOperation(op *pooldb.BlockOperation) *JSONBlockOperation {
	return &JSONBlockOperation{
		ID:                 op.ID,
		BlockIndex:         op.BlockIndex,
		Status:             op.Status,
		Entropy:            op.Entropy,
		BlockTimestamp:     op.BlockTimestamp,
		Plantable:          op.Plantable,
		TotalFarmers:       op.TotalFarmers,
		SuccessfulPlants:   op.SuccessfulPlants,
		SuccessfulWorks:    op.SuccessfulWorks,
		SuccessfulHarvests: op.SuccessfulHarvests,
		TotalStaked:        op.TotalStaked,
		TotalRewards:       op.TotalRewards,
		ErrorMessage:       op.ErrorMessage,
		DiscoveredAt:       op.DiscoveredAt,
		PlantCompletedAt:   op.PlantCompletedAt,
		WorkCompletedAt:    op.WorkCompletedAt,
	}
}
