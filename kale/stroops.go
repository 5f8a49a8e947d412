// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StroopsPerKale is the number of stroops in one whole KALE token.
const StroopsPerKale = 10_000_000

// Stroops is an amount of KALE in its smallest indivisible unit.
// All balance and reward arithmetic is integral.
type Stroops int64

// String implements stringer, rendering the amount as a decimal KALE value.
func (s Stroops) String() string {
	v := int64(s)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%07d", sign, v/StroopsPerKale, v%StroopsPerKale)
}

// ParseKale converts a decimal KALE amount like "1.25" into stroops.
// At most 7 fractional digits are accepted.
func ParseKale(str string) (Stroops, error) {
	str = strings.TrimSpace(str)
	neg := strings.HasPrefix(str, "-")
	if neg {
		str = str[1:]
	}
	intPart, fracPart, _ := strings.Cut(str, ".")
	if intPart == "" && fracPart == "" {
		return 0, errors.New("empty amount")
	}
	var (
		whole int64
		err   error
	)
	if intPart != "" {
		whole, err = strconv.ParseInt(intPart, 10, 64)
		if err != nil || whole < 0 {
			return 0, errors.New("invalid amount")
		}
	}
	var frac int64
	if fracPart != "" {
		if len(fracPart) > 7 {
			return 0, errors.New("amount precision exceeds 1 stroop")
		}
		frac, err = strconv.ParseInt(fracPart+strings.Repeat("0", 7-len(fracPart)), 10, 64)
		if err != nil || frac < 0 {
			return 0, errors.New("invalid amount")
		}
	}
	if whole > (math.MaxInt64-frac)/StroopsPerKale {
		return 0, errors.New("amount out of range")
	}
	v := whole*StroopsPerKale + frac
	if neg {
		v = -v
	}
	return Stroops(v), nil
}
