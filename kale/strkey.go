// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"encoding/base32"
	"errors"
)

// Strkey version bytes. The top 5 bits select the leading character of the
// encoded form: accounts start with 'G', secret seeds with 'S'.
const (
	strkeyVersionAccount byte = 6 << 3  // 'G'
	strkeyVersionSeed    byte = 18 << 3 // 'S'
)

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodeStrkey wraps a 32-byte payload with the version byte and CRC16
// checksum and encodes the result as unpadded base32 (56 chars).
func encodeStrkey(version byte, payload [32]byte) string {
	raw := make([]byte, 0, 35)
	raw = append(raw, version)
	raw = append(raw, payload[:]...)
	sum := crc16(raw)
	raw = append(raw, byte(sum), byte(sum>>8))
	return strkeyEncoding.EncodeToString(raw)
}

// decodeStrkey reverses encodeStrkey, verifying length, version and checksum.
func decodeStrkey(version byte, s string) ([32]byte, error) {
	var payload [32]byte
	if len(s) != 56 {
		return payload, errors.New("invalid length")
	}
	raw, err := strkeyEncoding.DecodeString(s)
	if err != nil {
		return payload, err
	}
	if len(raw) != 35 {
		return payload, errors.New("invalid decoded length")
	}
	if raw[0] != version {
		return payload, errors.New("version byte mismatch")
	}
	if crc16(raw[:33]) != uint16(raw[33])|uint16(raw[34])<<8 {
		return payload, errors.New("checksum mismatch")
	}
	copy(payload[:], raw[1:33])
	return payload, nil
}

// crc16 computes the CRC16-XModem checksum (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
