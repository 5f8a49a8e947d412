// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Entropy is the 32-byte per-block entropy the nonce search is seeded with.
// It renders as a bare 64-char lowercase hex string, without a 0x prefix.
type Entropy [32]byte

var (
	_ json.Marshaler   = (*Entropy)(nil)
	_ json.Unmarshaler = (*Entropy)(nil)
)

// String implements stringer
func (e Entropy) String() string {
	return hex.EncodeToString(e[:])
}

// AbbrevString returns abbrev string presentation.
func (e Entropy) AbbrevString() string {
	return fmt.Sprintf("%x…%x", e[:4], e[28:])
}

// Bytes returns byte slice form of Entropy.
func (e Entropy) Bytes() []byte {
	return e[:]
}

// IsZero returns if Entropy has all zero bytes.
func (e Entropy) IsZero() bool {
	return e == Entropy{}
}

// MarshalJSON implements json.Marshaler.
func (e *Entropy) MarshalJSON() ([]byte, error) {
	if e == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entropy) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseEntropy(str)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEntropy converts a 64-char hex string into Entropy.
func ParseEntropy(s string) (Entropy, error) {
	if len(s) != 32*2 {
		return Entropy{}, errors.New("invalid length")
	}
	var e Entropy
	if _, err := hex.Decode(e[:], []byte(s)); err != nil {
		return Entropy{}, err
	}
	return e, nil
}

// MustParseEntropy converts a hex string into Entropy, panic on error.
func MustParseEntropy(s string) Entropy {
	e, err := ParseEntropy(s)
	if err != nil {
		panic(err)
	}
	return e
}
