// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainhttp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/wallet"
)

// Operation types of the farm contract.
const (
	opPlant    = "plant"
	opWork     = "work"
	opHarvest  = "harvest"
	opTransfer = "transfer"
)

// operation is the single contract invocation an envelope carries.
type operation struct {
	Type        string       `json:"type"`
	Index       uint32       `json:"index,omitempty"`
	Amount      kale.Stroops `json:"amount,omitempty"`
	Nonce       uint64       `json:"nonce,omitempty"`
	Hash        string       `json:"hash,omitempty"`
	Destination string       `json:"destination,omitempty"`
}

// txBody is the signed portion of an envelope.
type txBody struct {
	Source    string    `json:"source"`
	Sequence  uint64    `json:"sequence"`
	Contract  string    `json:"contract"`
	Operation operation `json:"operation"`
	MaxTime   int64     `json:"maxTime"`
}

// txEnvelope is the wire form of a submitted transaction.
type txEnvelope struct {
	Tx        txBody `json:"tx"`
	Signature string `json:"signature"`
}

// signEnvelope signs sha256(networkID || canonical body). The network id
// prefix keeps signatures from replaying across networks.
func (c *Client) signEnvelope(kp *wallet.Keypair, body txBody) *txEnvelope {
	raw, _ := json.Marshal(body)

	payload := make([]byte, 0, len(c.networkID)+len(raw))
	payload = append(payload, c.networkID[:]...)
	payload = append(payload, raw...)
	digest := sha256.Sum256(payload)

	return &txEnvelope{
		Tx:        body,
		Signature: hex.EncodeToString(kp.Sign(digest[:])),
	}
}
