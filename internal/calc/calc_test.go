package calc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/errs"
)

func TestProportionalFill(t *testing.T) {
	tests := []struct {
		name               string
		totalSrc, totalDst uint64
		part               uint64
		wantSrc, wantDst   uint64
	}{
		{"half", 1000, 2000, 500, 500, 1000},
		{"full", 1000, 2000, 1000, 1000, 2000},
		{"rounds down", 3, 10, 1, 1, 3},
		{"zero part", 1000, 2000, 0, 0, 0},
		{"max values", math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst, err := ProportionalFill(tt.totalSrc, tt.totalDst, tt.part)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSrc, src)
			assert.Equal(t, tt.wantDst, dst)
		})
	}
}

func TestProportionalFillErrors(t *testing.T) {
	_, _, err := ProportionalFill(0, 10, 1)
	assert.ErrorIs(t, err, errs.ErrDivisionByZero)

	_, _, err = ProportionalFill(1, math.MaxUint64, 2)
	assert.ErrorIs(t, err, errs.ErrArithmeticOverflow)
}

func TestFee(t *testing.T) {
	fee, err := Fee(10_000, 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), fee)

	after, err := AmountAfterFee(10_000, 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_975), after)

	fee, err = Fee(1000, 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), fee)

	fee, err = Fee(39, 25)
	require.NoError(t, err)
	assert.Zero(t, fee)

	// u64 max with a 100% fee must not wrap in the intermediate
	fee, err = Fee(math.MaxUint64, BpsDenominator)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), fee)
}

func TestRate(t *testing.T) {
	r, err := Rate(1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000), r)

	_, err = Rate(0, 2000)
	assert.ErrorIs(t, err, errs.ErrDivisionByZero)
}

func TestWithinSlippage(t *testing.T) {
	ok, err := WithinSlippage(20_000, 20_100, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WithinSlippage(20_000, 21_000, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = WithinSlippage(20_000, 19_800, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WithinSlippage(20_000, 20_000, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// bounds saturate instead of wrapping
	ok, err = WithinSlippage(math.MaxUint64, math.MaxUint64, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckedAndSaturating(t *testing.T) {
	_, err := CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, errs.ErrArithmeticOverflow)
	_, err = CheckedSub(1, 2)
	assert.ErrorIs(t, err, errs.ErrArithmeticUnderflow)

	assert.Equal(t, uint64(math.MaxUint64), SaturatingAdd(math.MaxUint64, 5))
	assert.Equal(t, uint64(0), SaturatingSub(3, 5))
	assert.Equal(t, uint32(math.MaxUint32), SaturatingAdd32(math.MaxUint32, 1))
	assert.Equal(t, uint32(0), SaturatingSub32(0, 1))
}

func TestVolume(t *testing.T) {
	var v Volume
	v, err := v.Add(math.MaxUint64)
	require.NoError(t, err)
	v, err = v.Add(math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, "36893488147419103230", v.String())

	_, ok := v.Uint64()
	assert.False(t, ok)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `"36893488147419103230"`, string(b))

	var back Volume
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Zero(t, back.Cmp(v))

	top, err := ParseVolume("340282366920938463463374607431768211455") // 2^128-1
	require.NoError(t, err)
	_, err = top.Add(1)
	assert.ErrorIs(t, err, errs.ErrArithmeticOverflow)
}

func TestVolumeScan(t *testing.T) {
	var v Volume
	require.NoError(t, v.Scan([]byte("12345")))
	assert.Equal(t, "12345", v.String())
	require.NoError(t, v.Scan(nil))
	assert.True(t, v.IsZero())
	assert.Error(t, v.Scan(3.5))
}
