// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntropy(t *testing.T) {
	hexStr := strings.Repeat("a1b2c3d4", 8)
	e, err := ParseEntropy(hexStr)
	require.NoError(t, err)
	assert.Equal(t, hexStr, e.String())
	assert.Len(t, e.Bytes(), 32)
	assert.False(t, e.IsZero())

	_, err = ParseEntropy(hexStr[:63])
	assert.Error(t, err)
	_, err = ParseEntropy("0x" + hexStr)
	assert.Error(t, err)
	_, err = ParseEntropy(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestEntropyJSON(t *testing.T) {
	e := MustParseEntropy(strings.Repeat("0f", 32))

	data, err := json.Marshal(&e)
	require.NoError(t, err)
	assert.Equal(t, `"`+strings.Repeat("0f", 32)+`"`, string(data))

	var decoded Entropy
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e, decoded)
}
