// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccount    = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	testAccountKey = "3f0c34bf93ad0d9971d04ccc90f705511c838aad9734a4a2fb0d7a03fc7fe89a"
	testSeed       = "SBGWSG6BTNCKCOB3DIFBGCVMUPQFYPA2G4O34RMTB343OYPXU5DJDVMN"
	testSeedKey    = "69a8ad3399f3aeb4421b6c6d9e98a652a5c352f2c09c4e3f0d5a2ab3b741cb69"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(testAccount)
	require.NoError(t, err)
	assert.Equal(t, testAccountKey, hex.EncodeToString(addr.Bytes()))
	assert.Equal(t, testAccount, addr.String())
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"too short", testAccount[:55]},
		{"too long", testAccount + "A"},
		{"corrupted checksum", testAccount[:55] + "A"},
		{"seed instead of account", testSeed},
		{"bad charset", "ga7qynf7sowq3glr2bgmzehxavirza4kvwltjjfc7mgxua74p7ujvsgz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.addr)
			assert.Error(t, err)
		})
	}
}

func TestAddressJSON(t *testing.T) {
	addr := MustParseAddress(testAccount)

	data, err := json.Marshal(&addr)
	require.NoError(t, err)
	assert.Equal(t, `"`+testAccount+`"`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)
}

func TestSeedRoundTrip(t *testing.T) {
	raw, err := DecodeSeed(testSeed)
	require.NoError(t, err)
	assert.Equal(t, testSeedKey, hex.EncodeToString(raw[:]))
	assert.Equal(t, testSeed, EncodeSeed(raw))

	_, err = DecodeSeed(testAccount)
	assert.Error(t, err, "account strkey must not decode as seed")
}

func TestAddressAbbrev(t *testing.T) {
	addr := MustParseAddress(testAccount)
	assert.Equal(t, "GA7Q…VSGZ", addr.AbbrevString())
	assert.False(t, addr.IsZero())
	assert.True(t, Address{}.IsZero())
}
