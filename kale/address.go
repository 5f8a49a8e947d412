// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
)

// Address identifies an on-chain account. It holds the account's ed25519
// public key and renders as the 56-char "G..." string form.
type Address [32]byte

var (
	_ json.Marshaler   = (*Address)(nil)
	_ json.Unmarshaler = (*Address)(nil)
)

// String implements stringer
func (a Address) String() string {
	return encodeStrkey(strkeyVersionAccount, a)
}

// AbbrevString returns abbrev string presentation.
func (a Address) AbbrevString() string {
	s := a.String()
	return fmt.Sprintf("%s…%s", s[:4], s[52:])
}

// Bytes returns byte slice form of Address.
func (a Address) Bytes() []byte {
	return a[:]
}

// PublicKey returns the account's ed25519 public key.
func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a[:])
}

// IsZero returns if Address has all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON implements json.Marshaler.
func (a *Address) MarshalJSON() ([]byte, error) {
	if a == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseAddress(str)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress converts the string form into an Address, rejecting anything
// that is not 56 chars, not leading with 'G', or failing the checksum.
func ParseAddress(s string) (Address, error) {
	payload, err := decodeStrkey(strkeyVersionAccount, s)
	if err != nil {
		return Address{}, errors.New("invalid address: " + err.Error())
	}
	return Address(payload), nil
}

// MustParseAddress converts the string form into an Address, panic on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// EncodeSeed renders a raw ed25519 seed in the 56-char "S..." string form.
func EncodeSeed(seed [32]byte) string {
	return encodeStrkey(strkeyVersionSeed, seed)
}

// DecodeSeed reverses EncodeSeed.
func DecodeSeed(s string) ([32]byte, error) {
	payload, err := decodeStrkey(strkeyVersionSeed, s)
	if err != nil {
		return [32]byte{}, errors.New("invalid seed: " + err.Error())
	}
	return payload, nil
}
