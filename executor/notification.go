// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package executor

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kalepool/kalepool/kale"
)

// PlantedFarmer is one successfully planted farmer in a notification.
// CustodialSecretKey carries the keystore-sealed secret for wire
// compatibility; the executor never uses it and reloads secrets from the
// shared store instead.
type PlantedFarmer struct {
	FarmerID           uuid.UUID `json:"farmerId"`
	CustodialWallet    string    `json:"custodialWallet"`
	CustodialSecretKey string    `json:"custodialSecretKey"`
	StakeAmount        string    `json:"stakeAmount"`
	PlantingTime       time.Time `json:"plantingTime"`
}

// Notification is the planted-farmers message posted by the discoverer
// after a plant burst completes. It is idempotent keyed on BlockIndex:
// a duplicate receipt overwrites the scheduled work for that block.
type Notification struct {
	BlockIndex     uint32          `json:"blockIndex"`
	Entropy        kale.Entropy    `json:"entropy"`
	BlockTimestamp int64           `json:"blockTimestamp"`
	PlantedFarmers []PlantedFarmer `json:"plantedFarmers"`
}

// Validate rejects structurally invalid notifications before they reach the
// schedule.
func (n *Notification) Validate() error {
	if n.BlockIndex == 0 {
		return errors.New("blockIndex missing")
	}
	if n.Entropy.IsZero() {
		return errors.New("entropy missing")
	}
	if n.BlockTimestamp <= 0 {
		return errors.New("blockTimestamp missing")
	}
	for i, f := range n.PlantedFarmers {
		if f.FarmerID == uuid.Nil {
			return fmt.Errorf("plantedFarmers[%d]: farmerId missing", i)
		}
		if _, err := kale.ParseAddress(f.CustodialWallet); err != nil {
			return fmt.Errorf("plantedFarmers[%d]: bad custodialWallet: %v", i, err)
		}
		if _, err := strconv.ParseInt(f.StakeAmount, 10, 64); err != nil {
			return fmt.Errorf("plantedFarmers[%d]: bad stakeAmount %q", i, f.StakeAmount)
		}
	}
	return nil
}
