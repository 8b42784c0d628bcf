// Package ledger defines the asset ledger the venue settles against: accounts that hold a
// balance of one asset and can be debited only with the authority of their owner.
package ledger

import (
	"context"
	"math"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/pda"
)

// Ledger moves and retires balances. Implementations apply every call inside the
// caller's transaction, so a failed operation leaves no partial moves behind.
type Ledger interface {
	// Open creates account for owner/asset. Reopening with the same owner and asset is a no-op.
	Open(ctx context.Context, account, owner, asset pda.Address) error
	Move(ctx context.Context, asset, from, to, authority pda.Address, amount uint64) error
	// Close deletes an empty account. rentDestination receives anything the host
	// attaches to account storage; balances are never swept by Close.
	Close(ctx context.Context, account, rentDestination, authority pda.Address) error
	BalanceOf(ctx context.Context, account pda.Address) (uint64, error)
}

// Admin covers supply management that only operators perform.
type Admin interface {
	Credit(ctx context.Context, account pda.Address, amount uint64) error
	SetFrozen(ctx context.Context, account pda.Address, frozen bool) error
}

// Account is the stored form of a ledger account.
type Account struct {
	Address pda.Address
	Owner   pda.Address
	Asset   pda.Address
	Balance uint64
	Frozen  bool
}

// CheckOpen validates reopening an existing account.
func CheckOpen(existing *Account, owner, asset pda.Address) error {
	if existing.Owner != owner || existing.Asset != asset {
		return errs.ErrTransferFailed.Withf("account %s already open for another owner or asset", existing.Address)
	}
	return nil
}

// ApplyMove checks a transfer between two loaded accounts and updates their balances in place.
func ApplyMove(from, to *Account, asset, authority pda.Address, amount uint64) error {
	switch {
	case from.Address == to.Address:
		return errs.ErrTransferFailed.Withf("source and destination are the same account")
	case from.Asset != asset || to.Asset != asset:
		return errs.ErrTransferFailed.Withf("asset mismatch moving %s", asset)
	case from.Owner != authority:
		return errs.ErrTransferFailed.Withf("authority %s does not own %s", authority, from.Address)
	case from.Frozen || to.Frozen:
		return errs.ErrTransferFailed.Withf("account frozen")
	case from.Balance < amount:
		return errs.ErrTransferFailed.Withf("insufficient balance in %s: have %d, need %d", from.Address, from.Balance, amount)
	case to.Balance > math.MaxUint64-amount:
		return errs.ErrTransferFailed.Wrap(errs.ErrArithmeticOverflow)
	}
	from.Balance -= amount
	to.Balance += amount
	return nil
}

// CheckClose validates closing acct with authority.
func CheckClose(acct *Account, authority pda.Address) error {
	switch {
	case acct.Owner != authority:
		return errs.ErrVaultClosureFailed.Withf("authority %s does not own %s", authority, acct.Address)
	case acct.Balance != 0:
		return errs.ErrVaultClosureFailed.Withf("account %s still holds %d", acct.Address, acct.Balance)
	}
	return nil
}

// ApplyCredit adds newly issued units to acct.
func ApplyCredit(acct *Account, amount uint64) error {
	if acct.Balance > math.MaxUint64-amount {
		return errs.ErrArithmeticOverflow
	}
	acct.Balance += amount
	return nil
}
