package pda

import (
	"bytes"
	"database/sql/driver"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address is a 32-byte account identity rendered as base58.
type Address [32]byte

// Zero is the unset address.
var Zero Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("address %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParse is ParseAddress for constants and tests.
func MustParse(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) Bytes() []byte { return a[:] }

func (a Address) IsZero() bool { return a == Zero }

func (a Address) Equal(o Address) bool { return bytes.Equal(a[:], o[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the address as its base58 text.
func (a Address) Value() (driver.Value, error) { return a.String(), nil }

func (a *Address) Scan(src any) error {
	switch t := src.(type) {
	case string:
		return a.UnmarshalText([]byte(t))
	case []byte:
		return a.UnmarshalText(t)
	default:
		return fmt.Errorf("address: cannot scan %T", src)
	}
}
