// Package validate holds the precondition checks shared by listing and admin operations.
package validate

import (
	"otc-exchange/internal/calc"
	"otc-exchange/internal/errs"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

// Amount rejects zero and anything below min.
func Amount(amount, min uint64) error {
	if amount == 0 {
		return errs.ErrInvalidAmount
	}
	if amount < min {
		return errs.ErrAmountTooSmall.Withf("amount %d below minimum %d", amount, min)
	}
	return nil
}

func DifferentMints(a, b pda.Address) error {
	if a == b {
		return errs.ErrSameTokenMints
	}
	return nil
}

func Duration(d int64, p *model.Platform) error {
	if d < p.MinListingDuration {
		return errs.ErrDurationTooShort.Withf("duration %ds below %ds", d, p.MinListingDuration)
	}
	if d > p.MaxListingDuration {
		return errs.ErrDurationTooLong.Withf("duration %ds above %ds", d, p.MaxListingDuration)
	}
	return nil
}

func DurationBounds(min, max int64) error {
	if min <= 0 || min >= max {
		return errs.ErrInvalidDurationBounds
	}
	return nil
}

func FeeBps(bps uint16) error {
	if bps > calc.MaxFeeBps {
		return errs.ErrInvalidFeeConfiguration
	}
	return nil
}

func SlippageBps(bps uint16) error {
	if bps > calc.MaxSlippageBps {
		return errs.ErrInvalidSlippage.Withf("slippage %d bps above %d", bps, calc.MaxSlippageBps)
	}
	return nil
}

func MinFillAmount(minFill, total uint64) error {
	if minFill > total {
		return errs.ErrMinFillAmountTooLarge
	}
	return nil
}

func NotPaused(p *model.Platform) error {
	if p.Paused {
		return errs.ErrPlatformPaused
	}
	return nil
}

func ListingLimit(active int, max uint32) error {
	if active < 0 || uint64(active) >= uint64(max) {
		return errs.ErrMaxListingsReached
	}
	return nil
}

func FutureTimestamp(ts, now int64) error {
	if ts <= now {
		return errs.ErrInvalidTimestamp
	}
	return nil
}

// Whitelisted accepts only an entry stored at the expected derived address that is switched on.
func Whitelisted(entry *model.WhitelistEntry, expected pda.Address) error {
	if entry == nil {
		return errs.ErrTokenNotWhitelisted
	}
	if entry.Address != expected {
		return errs.ErrInvalidPDA.Withf("whitelist entry for %s", entry.Mint)
	}
	if !entry.Whitelisted {
		return errs.ErrTokenNotWhitelisted.Withf("asset %s is not whitelisted", entry.Mint)
	}
	return nil
}

// SuppliedAddress compares a caller-supplied address against the derived one.
// A nil supplied address is accepted: the derived address is used as is.
func SuppliedAddress(derived pda.Address, supplied *pda.Address) error {
	if supplied != nil && *supplied != derived {
		return errs.ErrInvalidPDA.Withf("expected %s, got %s", derived, *supplied)
	}
	return nil
}
