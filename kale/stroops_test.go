// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStroopsString(t *testing.T) {
	tests := []struct {
		amount Stroops
		want   string
	}{
		{0, "0.0000000"},
		{1, "0.0000001"},
		{MinExit, "0.1000000"},
		{StroopsPerKale, "1.0000000"},
		{12_345_678, "1.2345678"},
		{-25_000_000, "-2.5000000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.amount.String())
	}
}

func TestParseKale(t *testing.T) {
	tests := []struct {
		in      string
		want    Stroops
		wantErr bool
	}{
		{"1.25", 12_500_000, false},
		{"0.0000001", 1, false},
		{"100", 1_000_000_000, false},
		{".5", 5_000_000, false},
		{"-2.5", -25_000_000, false},
		{"1.23456789", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{".", 0, true},
		{"1.-5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKale(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
