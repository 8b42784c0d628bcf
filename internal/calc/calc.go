// Package calc holds the fixed-point arithmetic used to price fills and fees.
// Every quantity is an unsigned 64-bit base-unit amount; products are formed
// in 256-bit registers so a u64*u64 intermediate can never wrap.
package calc

import (
	"math"

	"github.com/holiman/uint256"

	"otc-exchange/internal/errs"
)

const (
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10_000
	// MaxFeeBps caps any platform fee at 10%.
	MaxFeeBps = 1_000
	// MaxSlippageBps caps any slippage tolerance at 10%.
	MaxSlippageBps = 1_000
)

// MulDiv returns floor(a*b/d).
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, errs.ErrDivisionByZero
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, errs.ErrArithmeticOverflow
	}
	return x.Uint64(), nil
}

// Fee returns floor(amount*feeBps/10000).
func Fee(amount uint64, feeBps uint16) (uint64, error) {
	return MulDiv(amount, uint64(feeBps), BpsDenominator)
}

// AmountAfterFee returns amount minus its fee.
func AmountAfterFee(amount uint64, feeBps uint16) (uint64, error) {
	fee, err := Fee(amount, feeBps)
	if err != nil {
		return 0, err
	}
	return CheckedSub(amount, fee)
}

// ProportionalFill scales partialSource onto the destination side of a
// totalSource:totalDestination ratio, rounding the destination down.
func ProportionalFill(totalSource, totalDestination, partialSource uint64) (uint64, uint64, error) {
	if totalSource == 0 {
		return 0, 0, errs.ErrDivisionByZero
	}
	dst, err := MulDiv(partialSource, totalDestination, totalSource)
	if err != nil {
		return 0, 0, err
	}
	return partialSource, dst, nil
}

// Rate is destination per source unit, scaled by 10000.
func Rate(source, destination uint64) (uint64, error) {
	if source == 0 {
		return 0, errs.ErrDivisionByZero
	}
	return MulDiv(destination, BpsDenominator, source)
}

// WithinSlippage reports whether actualRate lies within maxSlippageBps of expectedRate.
func WithinSlippage(expectedRate, actualRate uint64, maxSlippageBps uint16) (bool, error) {
	deviation, err := MulDiv(expectedRate, uint64(maxSlippageBps), BpsDenominator)
	if err != nil {
		return false, err
	}
	lo := SaturatingSub(expectedRate, deviation)
	hi := SaturatingAdd(expectedRate, deviation)
	return actualRate >= lo && actualRate <= hi, nil
}

func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, errs.ErrArithmeticOverflow
	}
	return a + b, nil
}

func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, errs.ErrArithmeticUnderflow
	}
	return a - b, nil
}

func SaturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingAdd32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func SaturatingSub32(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
