// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	// NanoPerToken number of nano units per whole token.
	NanoPerToken uint64 = 1e9
)

var (
	errTokenOverflow  = errors.New("token amount overflow")
	errTokenUnderflow = errors.New("token amount underflow")
)

// Token an amount of network tokens, counted in indivisible nano units.
type Token uint64

// FromNano constructs a Token from a raw nano unit count.
func FromNano(nano uint64) Token {
	return Token(nano)
}

// AsNano returns the raw nano unit count.
func (t Token) AsNano() uint64 {
	return uint64(t)
}

// Add returns t + other, failing on overflow.
func (t Token) Add(other Token) (Token, error) {
	if other > math.MaxUint64-t {
		return 0, errTokenOverflow
	}
	return t + other, nil
}

// Sub returns t - other, failing if the result would go negative.
func (t Token) Sub(other Token) (Token, error) {
	if other > t {
		return 0, errTokenUnderflow
	}
	return t - other, nil
}

// String implements stringer, whole tokens dot nano remainder.
func (t Token) String() string {
	return fmt.Sprintf("%d.%09d", uint64(t)/NanoPerToken, uint64(t)%NanoPerToken)
}

// IsTokenOverflow returns whether err indicates amount overflow.
func IsTokenOverflow(err error) bool {
	return err == errTokenOverflow
}

// IsTokenUnderflow returns whether err indicates the amount would go negative.
func IsTokenUnderflow(err error) bool {
	return err == errTokenUnderflow
}
