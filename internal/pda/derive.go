// Package pda derives deterministic account addresses from seeds.
//
// An address is sha256(seeds || bump || program || "ProgramDerivedAddress"), searched
// from bump 255 downwards for the first hash that is not a valid ed25519 point, so no
// private key can ever sign for it. Only the engine, which knows the seeds, can act
// with the authority of a derived address.
package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	marker        = "ProgramDerivedAddress"
)

// Seed prefixes.
const (
	SeedPlatform    = "platform"
	SeedListing     = "listing"
	SeedVault       = "vault"
	SeedUserProfile = "user_profile"
	SeedWhitelist   = "whitelist"
	SeedHolding     = "holding"
)

var (
	ErrMaxSeedLength = errors.New("pda: seed longer than 32 bytes")
	ErrTooManySeeds  = errors.New("pda: too many seeds")
	ErrOnCurve       = errors.New("pda: address lies on the ed25519 curve")
	ErrNoBump        = errors.New("pda: no viable bump seed")
)

// CreateProgramAddress hashes seeds (the bump included) under program.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > maxSeeds {
		return Zero, ErrTooManySeeds
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return Zero, ErrMaxSeedLength
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(marker))

	var out Address
	copy(out[:], h.Sum(nil))
	if isOnCurve(out[:]) {
		return Zero, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress returns the first off-curve address and its bump.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrNoBump
}

// Verify recomputes the address for seeds+bump and compares it to claimed.
func Verify(claimed Address, bump uint8, seeds [][]byte, program Address) bool {
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	addr, err := CreateProgramAddress(withBump, program)
	return err == nil && addr == claimed
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ── Seeds ────────────────────────────────────────────

func PlatformSeeds(authority Address) [][]byte {
	return [][]byte{[]byte(SeedPlatform), authority.Bytes()}
}

func ListingSeeds(maker Address, id uint64) [][]byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], id)
	return [][]byte{[]byte(SeedListing), maker.Bytes(), le[:]}
}

func VaultSeeds(listing Address) [][]byte {
	return [][]byte{[]byte(SeedVault), listing.Bytes()}
}

func UserProfileSeeds(user Address) [][]byte {
	return [][]byte{[]byte(SeedUserProfile), user.Bytes()}
}

func WhitelistSeeds(mint Address) [][]byte {
	return [][]byte{[]byte(SeedWhitelist), mint.Bytes()}
}

func HoldingSeeds(owner, asset Address) [][]byte {
	return [][]byte{[]byte(SeedHolding), owner.Bytes(), asset.Bytes()}
}

// ── Deriver ──────────────────────────────────────────

// Deriver binds derivations to one program id.
type Deriver struct {
	Program Address
}

func NewDeriver(program Address) Deriver { return Deriver{Program: program} }

func (d Deriver) Platform(authority Address) (Address, uint8, error) {
	return FindProgramAddress(PlatformSeeds(authority), d.Program)
}

func (d Deriver) Listing(maker Address, id uint64) (Address, uint8, error) {
	return FindProgramAddress(ListingSeeds(maker, id), d.Program)
}

func (d Deriver) Vault(listing Address) (Address, uint8, error) {
	return FindProgramAddress(VaultSeeds(listing), d.Program)
}

func (d Deriver) UserProfile(user Address) (Address, uint8, error) {
	return FindProgramAddress(UserProfileSeeds(user), d.Program)
}

func (d Deriver) Whitelist(mint Address) (Address, uint8, error) {
	return FindProgramAddress(WhitelistSeeds(mint), d.Program)
}

// Holding is the account that holds owner's balance of asset.
func (d Deriver) Holding(owner, asset Address) (Address, error) {
	addr, _, err := FindProgramAddress(HoldingSeeds(owner, asset), d.Program)
	return addr, err
}
