package calc

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"otc-exchange/internal/errs"
)

// volumeBits is the width of cumulative volume accumulators.
const volumeBits = 128

// Volume is a cumulative traded amount. It is wider than a single fill so that
// summing u64 fills cannot overflow in practice, and it fails closed when it would
// pass 128 bits. The zero value is ready to use.
type Volume struct {
	v uint256.Int
}

func NewVolume(n uint64) Volume {
	var out Volume
	out.v.SetUint64(n)
	return out
}

// ParseVolume parses a base-10 string.
func ParseVolume(s string) (Volume, error) {
	var out Volume
	if s == "" {
		return out, nil
	}
	if err := out.v.SetFromDecimal(s); err != nil {
		return Volume{}, fmt.Errorf("parse volume %q: %w", s, err)
	}
	if out.v.BitLen() > volumeBits {
		return Volume{}, errs.ErrArithmeticOverflow
	}
	return out, nil
}

// Add returns v+n, or ErrArithmeticOverflow past 128 bits.
func (v Volume) Add(n uint64) (Volume, error) {
	var out Volume
	out.v.Add(&v.v, uint256.NewInt(n))
	if out.v.BitLen() > volumeBits {
		return Volume{}, errs.ErrArithmeticOverflow
	}
	return out, nil
}

func (v Volume) Cmp(o Volume) int { return v.v.Cmp(&o.v) }

func (v Volume) IsZero() bool { return v.v.IsZero() }

// Uint64 reports the value when it fits.
func (v Volume) Uint64() (uint64, bool) { return v.v.Uint64(), v.v.IsUint64() }

func (v Volume) String() string { return v.v.Dec() }

func (v Volume) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.v.Dec() + `"`), nil
}

func (v *Volume) UnmarshalJSON(b []byte) error {
	parsed, err := ParseVolume(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value stores the volume as a NUMERIC literal.
func (v Volume) Value() (driver.Value, error) { return v.v.Dec(), nil }

func (v *Volume) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		*v = Volume{}
		return nil
	case []byte:
		return v.scanString(string(t))
	case string:
		return v.scanString(t)
	case int64:
		if t < 0 {
			return errs.ErrArithmeticUnderflow
		}
		*v = NewVolume(uint64(t))
		return nil
	default:
		return fmt.Errorf("volume: cannot scan %T", src)
	}
}

func (v *Volume) scanString(s string) error {
	parsed, err := ParseVolume(strings.TrimSuffix(s, ".0"))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
