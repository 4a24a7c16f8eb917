package common

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// WadDecimals is the precision of all USD values and normalized prices.
const WadDecimals = 18

// Wad is 10^18.
var Wad = uint256.NewInt(1_000_000_000_000_000_000)

var pow10 [78]*uint256.Int

func init() {
	pow10[0] = uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 1; i < len(pow10); i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Pow10 returns 10^n. Panics if n does not fit into 256 bits.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Set(pow10[n])
}

// NormalizeDecimals rescales amount expressed with from decimals to the one
// expressed with to decimals. Downscaling truncates toward zero, upscaling
// fails with ErrArithmetic on overflow.
func NormalizeDecimals(amount *uint256.Int, from, to uint8) (*uint256.Int, error) {
	switch {
	case from == to:
		return new(uint256.Int).Set(amount), nil
	case from > to:
		return new(uint256.Int).Div(amount, pow10[from-to]), nil
	default:
		res, overflow := new(uint256.Int).MulOverflow(amount, pow10[to-from])
		if overflow {
			return nil, fmt.Errorf("normalize %s from %d to %d decimals: %w", amount.Dec(), from, to, ErrArithmetic)
		}
		return res, nil
	}
}

// ToWad converts native token amount to 18 decimals.
func ToWad(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	return NormalizeDecimals(amount, decimals, WadDecimals)
}

// FromWad converts 18-decimal amount to the native token precision.
func FromWad(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	return NormalizeDecimals(amount, WadDecimals, decimals)
}

// MulDiv returns floor(x*y/d) computed with 512-bit intermediate precision.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("divide by zero: %w", ErrArithmetic)
	}
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%s*%s/%s: %w", x.Dec(), y.Dec(), d.Dec(), ErrArithmetic)
	}
	return res, nil
}

// MulDivUp is MulDiv rounding up.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	res, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return res, nil
	}
	res, overflow := res.AddOverflow(res, uint256.NewInt(1))
	if overflow {
		return nil, fmt.Errorf("round up: %w", ErrArithmetic)
	}
	return res, nil
}

// Add returns x+y or ErrArithmetic on overflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	res, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%s+%s: %w", x.Dec(), y.Dec(), ErrArithmetic)
	}
	return res, nil
}

// Sub returns x-y or ErrArithmetic on underflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	res, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%s-%s: %w", x.Dec(), y.Dec(), ErrArithmetic)
	}
	return res, nil
}

// Min returns the lesser of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// FromBig converts non-negative big integer to uint256.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s: %w", b, ErrArithmetic)
	}
	res, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits: %w", b, ErrArithmetic)
	}
	return res, nil
}

// Amount is a shortcut for uint256.NewInt.
func Amount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// MustAmount parses decimal string. Panics on invalid input, so it is
// intended for constants and tests only.
func MustAmount(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}
