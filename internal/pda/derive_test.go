package pda

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(label string) Address {
	return Address(sha256.Sum256([]byte(label)))
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	d := NewDeriver(testAddr("program"))
	maker := testAddr("maker")

	a1, b1, err := d.Listing(maker, 7)
	require.NoError(t, err)
	a2, b2, err := d.Listing(maker, 7)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.False(t, isOnCurve(a1[:]))

	other, _, err := d.Listing(maker, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	otherMaker, _, err := d.Listing(testAddr("someone else"), 7)
	require.NoError(t, err)
	assert.NotEqual(t, a1, otherMaker)
}

func TestDerivationsAreProgramScoped(t *testing.T) {
	user := testAddr("user")
	a, _, err := NewDeriver(testAddr("p1")).UserProfile(user)
	require.NoError(t, err)
	b, _, err := NewDeriver(testAddr("p2")).UserProfile(user)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	program := testAddr("program")
	listing := testAddr("listing")
	vault, bump, err := NewDeriver(program).Vault(listing)
	require.NoError(t, err)

	assert.True(t, Verify(vault, bump, VaultSeeds(listing), program))
	assert.False(t, Verify(vault, bump, VaultSeeds(testAddr("other")), program))
	assert.False(t, Verify(testAddr("forged"), bump, VaultSeeds(listing), program))
}

func TestSeedLimits(t *testing.T) {
	long := make([]byte, 33)
	_, _, err := FindProgramAddress([][]byte{long}, testAddr("program"))
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	many := make([][]byte, 17)
	_, err = CreateProgramAddress(many, testAddr("program"))
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestAddressText(t *testing.T) {
	a := testAddr("text")
	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	b, err := json.Marshal(map[string]Address{"a": a})
	require.NoError(t, err)
	var back map[string]Address
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, a, back["a"])

	_, err = ParseAddress("abc")
	assert.Error(t, err)
	_, err = ParseAddress("0OIl")
	assert.Error(t, err)
}
