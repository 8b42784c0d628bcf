package validate

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

func addr(s string) pda.Address { return pda.Address(sha256.Sum256([]byte(s))) }

func TestAmount(t *testing.T) {
	assert.NoError(t, Amount(1000, 100))
	assert.ErrorIs(t, Amount(0, 100), errs.ErrInvalidAmount)
	assert.ErrorIs(t, Amount(50, 100), errs.ErrAmountTooSmall)
	assert.ErrorIs(t, Amount(0, 0), errs.ErrInvalidAmount)
}

func TestDuration(t *testing.T) {
	p := &model.Platform{MinListingDuration: 300, MaxListingDuration: 2_592_000}
	assert.NoError(t, Duration(300, p))
	assert.NoError(t, Duration(2_592_000, p))
	assert.ErrorIs(t, Duration(299, p), errs.ErrDurationTooShort)
	assert.ErrorIs(t, Duration(2_592_001, p), errs.ErrDurationTooLong)

	assert.NoError(t, DurationBounds(300, 600))
	assert.ErrorIs(t, DurationBounds(600, 600), errs.ErrInvalidDurationBounds)
	assert.ErrorIs(t, DurationBounds(0, 600), errs.ErrInvalidDurationBounds)
}

func TestBps(t *testing.T) {
	assert.NoError(t, FeeBps(25))
	assert.NoError(t, FeeBps(1000))
	assert.ErrorIs(t, FeeBps(1001), errs.ErrInvalidFeeConfiguration)
	assert.NoError(t, SlippageBps(1000))
	assert.ErrorIs(t, SlippageBps(1001), errs.ErrInvalidSlippage)
}

func TestMinFillAndLimits(t *testing.T) {
	assert.NoError(t, MinFillAmount(100, 1000))
	assert.NoError(t, MinFillAmount(1000, 1000))
	assert.ErrorIs(t, MinFillAmount(1001, 1000), errs.ErrMinFillAmountTooLarge)

	assert.NoError(t, ListingLimit(99, 100))
	assert.ErrorIs(t, ListingLimit(100, 100), errs.ErrMaxListingsReached)

	assert.NoError(t, FutureTimestamp(11, 10))
	assert.ErrorIs(t, FutureTimestamp(10, 10), errs.ErrInvalidTimestamp)
}

func TestMintsAndPause(t *testing.T) {
	assert.NoError(t, DifferentMints(addr("a"), addr("b")))
	assert.ErrorIs(t, DifferentMints(addr("a"), addr("a")), errs.ErrSameTokenMints)

	assert.NoError(t, NotPaused(&model.Platform{}))
	assert.ErrorIs(t, NotPaused(&model.Platform{Paused: true}), errs.ErrPlatformPaused)
}

func TestWhitelisted(t *testing.T) {
	expected := addr("entry")
	on := &model.WhitelistEntry{Address: expected, Mint: addr("mint"), Whitelisted: true}
	assert.NoError(t, Whitelisted(on, expected))
	assert.ErrorIs(t, Whitelisted(nil, expected), errs.ErrTokenNotWhitelisted)
	assert.ErrorIs(t, Whitelisted(on, addr("elsewhere")), errs.ErrInvalidPDA)

	off := *on
	off.Whitelisted = false
	assert.ErrorIs(t, Whitelisted(&off, expected), errs.ErrTokenNotWhitelisted)
}

func TestSuppliedAddress(t *testing.T) {
	derived := addr("derived")
	assert.NoError(t, SuppliedAddress(derived, nil))
	assert.NoError(t, SuppliedAddress(derived, &derived))
	other := addr("other")
	assert.ErrorIs(t, SuppliedAddress(derived, &other), errs.ErrInvalidPDA)
}
