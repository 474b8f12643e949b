// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenArithmetic(t *testing.T) {
	a := FromNano(700)
	b := FromNano(300)

	sum, err := a.Add(b)
	assert.Nil(t, err)
	assert.Equal(t, FromNano(1000), sum)

	diff, err := a.Sub(b)
	assert.Nil(t, err)
	assert.Equal(t, FromNano(400), diff)

	_, err = b.Sub(a)
	assert.True(t, IsTokenUnderflow(err))

	_, err = Token(math.MaxUint64).Add(1)
	assert.True(t, IsTokenOverflow(err))
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, "1.500000000", Token(3*NanoPerToken/2).String())
	assert.Equal(t, "0.000000001", Token(1).String())
}
