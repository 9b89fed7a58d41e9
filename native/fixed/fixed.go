// Package fixed implements the checked unsigned 128-bit arithmetic used by the
// exchange engine. Values are carried in uint256.Int so that intermediate
// products of two 128-bit operands never wrap, but every result handed back to
// a caller must fit in 128 bits or the operation fails with ErrOverflow.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// ScalingFactor is the fixed-point denominator applied to prices and the
	// reward-per-share accumulator.
	ScalingFactor = 1_000_000
	// BasisPoints is the fee denominator; 10,000 basis points equal 100%.
	BasisPoints = 10_000

	maxBits = 128
)

var (
	ErrOverflow     = errors.New("fixed: arithmetic overflow")
	ErrDivideByZero = errors.New("fixed: divide by zero")
)

var (
	scale = uint256.NewInt(ScalingFactor)
	bps   = uint256.NewInt(BasisPoints)
)

// New returns v as a 128-bit amount.
func New(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

// Zero returns the zero amount.
func Zero() uint256.Int {
	return uint256.Int{}
}

// Scale returns SCALING_FACTOR as an amount.
func Scale() uint256.Int {
	return *scale
}

// Fits reports whether x is representable as an unsigned 128-bit integer.
func Fits(x uint256.Int) bool {
	return x.BitLen() <= maxBits
}

func bounded(z *uint256.Int) (uint256.Int, error) {
	if z.BitLen() > maxBits {
		return uint256.Int{}, ErrOverflow
	}
	return *z, nil
}

// Add returns a+b.
func Add(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&a, &b); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return bounded(&z)
}

// Sub returns a-b. Underflow is reported as ErrOverflow.
func Sub(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a, &b); underflow {
		return uint256.Int{}, fmt.Errorf("%w: %s - %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// Mul returns a*b.
func Mul(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(&a, &b); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return bounded(&z)
}

// Div returns floor(a/b).
func Div(a, b uint256.Int) (uint256.Int, error) {
	if b.IsZero() {
		return uint256.Int{}, ErrDivideByZero
	}
	var z uint256.Int
	z.Div(&a, &b)
	return z, nil
}

// MulDiv returns floor(a*b/d). The product is formed at full width before the
// division so only the final quotient has to fit.
func MulDiv(a, b, d uint256.Int) (uint256.Int, error) {
	if d.IsZero() {
		return uint256.Int{}, ErrDivideByZero
	}
	if !Fits(a) || !Fits(b) {
		return uint256.Int{}, ErrOverflow
	}
	var z uint256.Int
	z.Mul(&a, &b)
	z.Div(&z, &d)
	return bounded(&z)
}

// MulDivCeil returns ceil(a*b/d).
func MulDivCeil(a, b, d uint256.Int) (uint256.Int, error) {
	if d.IsZero() {
		return uint256.Int{}, ErrDivideByZero
	}
	if !Fits(a) || !Fits(b) {
		return uint256.Int{}, ErrOverflow
	}
	var product, quo, rem uint256.Int
	product.Mul(&a, &b)
	quo.DivMod(&product, &d, &rem)
	if !rem.IsZero() {
		quo.AddUint64(&quo, 1)
	}
	return bounded(&quo)
}

// Sqrt returns floor(sqrt(a)).
func Sqrt(a uint256.Int) uint256.Int {
	var z uint256.Int
	z.Sqrt(&a)
	return z
}

// ApplyBps returns floor(amount*rate/10000).
func ApplyBps(amount uint256.Int, rate uint64) (uint256.Int, error) {
	return MulDiv(amount, *uint256.NewInt(rate), *bps)
}

// ScaleUp returns amount*SCALING_FACTOR/d.
func ScaleUp(amount, d uint256.Int) (uint256.Int, error) {
	return MulDiv(amount, *scale, d)
}

// ScaleDown returns amount*m/SCALING_FACTOR.
func ScaleDown(amount, m uint256.Int) (uint256.Int, error) {
	return MulDiv(amount, m, *scale)
}

// Min returns the smaller of a and b.
func Min(a, b uint256.Int) uint256.Int {
	if a.Lt(&b) {
		return a
	}
	return b
}

// Parse decodes a base-10 amount.
func Parse(s string) (uint256.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return uint256.Int{}, nil
	}
	z, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return bounded(z)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// ToBig converts x for RLP encoding.
func ToBig(x uint256.Int) *big.Int {
	return x.ToBig()
}

// FromBig converts a decoded value, treating nil as zero.
func FromBig(b *big.Int) (uint256.Int, error) {
	if b == nil {
		return uint256.Int{}, nil
	}
	if b.Sign() < 0 {
		return uint256.Int{}, fmt.Errorf("fixed: negative value %s", b.String())
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return uint256.Int{}, ErrOverflow
	}
	return bounded(z)
}

// SqrtMul returns floor(sqrt(a*b)) without requiring the product to fit in
// 128 bits.
func SqrtMul(a, b uint256.Int) (uint256.Int, error) {
	if !Fits(a) || !Fits(b) {
		return uint256.Int{}, ErrOverflow
	}
	var product, root uint256.Int
	product.Mul(&a, &b)
	root.Sqrt(&product)
	return root, nil
}
