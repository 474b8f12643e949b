// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/at2net/at2/at2"
)

// CostCurve prices a write of the given byte count at the given network fill
// level (0..1). Implementations must be non-decreasing in both arguments.
type CostCurve interface {
	Cost(bytes uint64, fill float64) at2.Token
}

// CurveParams parameters of the standard curve, loadable from YAML.
type CurveParams struct {
	// BaseNanoPerByte price of one byte on an empty network, in nano tokens.
	BaseNanoPerByte uint64 `yaml:"base_nano_per_byte"`
	// Steepness how sharply price rises as the network fills.
	Steepness float64 `yaml:"steepness"`
}

// DefaultCurveParams the params used when no configuration is supplied.
var DefaultCurveParams = CurveParams{
	BaseNanoPerByte: 2,
	Steepness:       8,
}

// StandardCurve the shipped cost curve: base price scaled by
// (1 + fill)^steepness. Monotone in bytes and in fill.
type StandardCurve struct {
	params CurveParams
}

// NewCurve creates a standard curve from params.
func NewCurve(params CurveParams) *StandardCurve {
	return &StandardCurve{params: params}
}

// DefaultCurve creates the curve with default params.
func DefaultCurve() *StandardCurve {
	return NewCurve(DefaultCurveParams)
}

// LoadCurve reads curve params as YAML. Zero-valued fields fall back to defaults.
func LoadCurve(r io.Reader) (*StandardCurve, error) {
	var params CurveParams
	if err := yaml.NewDecoder(r).Decode(&params); err != nil {
		return nil, errors.Wrap(err, "load cost curve")
	}
	if params.BaseNanoPerByte == 0 {
		params.BaseNanoPerByte = DefaultCurveParams.BaseNanoPerByte
	}
	if params.Steepness == 0 {
		params.Steepness = DefaultCurveParams.Steepness
	}
	return NewCurve(params), nil
}

// Cost implements CostCurve.
func (c *StandardCurve) Cost(bytes uint64, fill float64) at2.Token {
	if fill < 0 {
		fill = 0
	}
	if fill > 1 {
		fill = 1
	}
	base := float64(c.params.BaseNanoPerByte) * float64(bytes)
	scaled := base * math.Pow(1+fill, c.params.Steepness)
	if scaled > math.MaxUint64 {
		return at2.Token(math.MaxUint64)
	}
	return at2.FromNano(uint64(scaled))
}

// SetFill records the section's current view of network fill (0..1),
// reported by the storage layer.
func (l *Ledger) SetFill(fill float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fill = fill
}

// StoreCost prices a write of the given byte count at the current fill level.
// The requester key is accepted for future per-requester policies; the shipped
// curve prices all requesters alike.
func (l *Ledger) StoreCost(_ at2.PublicKey, bytes uint64) at2.Token {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.curve.Cost(bytes, l.fill)
}
