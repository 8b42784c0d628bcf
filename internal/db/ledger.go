package db

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/ledger"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

func (t *pgTx) account(ctx context.Context, addr pda.Address) (*ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, selectSQL("ledger_accounts", accountCols)+` WHERE address=$1`+forUpdate, addr))
	return a, notFound(err)
}

// lockPair locks both accounts in address order so two movers never wait on each other.
func (t *pgTx) lockPair(ctx context.Context, from, to pda.Address) (map[pda.Address]*ledger.Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		selectSQL("ledger_accounts", accountCols)+` WHERE address = ANY($1) ORDER BY address`+forUpdate,
		pq.Array([]string{from.String(), to.String()}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[pda.Address]*ledger.Account, 2)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.Address] = a
	}
	return out, rows.Err()
}

func (t *pgTx) setBalance(ctx context.Context, a *ledger.Account) error {
	return execOne(ctx, t.tx, `UPDATE ledger_accounts SET balance=$2 WHERE address=$1`, a.Address, num(a.Balance))
}

func (t *pgTx) Open(ctx context.Context, account, owner, asset pda.Address) error {
	if err := exec(ctx, t.tx,
		`INSERT INTO ledger_accounts (address, owner, asset, balance, frozen) VALUES ($1,$2,$3,0,false) ON CONFLICT (address) DO NOTHING`,
		account, owner, asset); err != nil {
		return err
	}
	a, err := t.account(ctx, account)
	if err != nil {
		return err
	}
	return ledger.CheckOpen(a, owner, asset)
}

func (t *pgTx) Move(ctx context.Context, asset, from, to, authority pda.Address, amount uint64) error {
	if from == to {
		return errs.ErrTransferFailed.Withf("source and destination are the same account")
	}
	accts, err := t.lockPair(ctx, from, to)
	if err != nil {
		return err
	}
	src, ok := accts[from]
	if !ok {
		return errs.ErrTransferFailed.Withf("source account %s not found", from)
	}
	dst, ok := accts[to]
	if !ok {
		return errs.ErrTransferFailed.Withf("destination account %s not found", to)
	}
	if err := ledger.ApplyMove(src, dst, asset, authority, amount); err != nil {
		return err
	}
	if err := t.setBalance(ctx, src); err != nil {
		return err
	}
	return t.setBalance(ctx, dst)
}

func (t *pgTx) Close(ctx context.Context, account, rentDestination, authority pda.Address) error {
	a, err := t.account(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return errs.ErrVaultClosureFailed.Withf("account %s not found", account)
	}
	if err != nil {
		return err
	}
	if rentDestination.IsZero() {
		return errs.ErrVaultClosureFailed.Withf("missing rent destination")
	}
	if err := ledger.CheckClose(a, authority); err != nil {
		return err
	}
	return execOne(ctx, t.tx, `DELETE FROM ledger_accounts WHERE address=$1`, account)
}

func (t *pgTx) BalanceOf(ctx context.Context, account pda.Address) (uint64, error) {
	a, err := t.account(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return 0, errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (t *pgTx) Credit(ctx context.Context, account pda.Address, amount uint64) error {
	a, err := t.account(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	if err != nil {
		return err
	}
	if err := ledger.ApplyCredit(a, amount); err != nil {
		return err
	}
	return t.setBalance(ctx, a)
}

func (t *pgTx) SetFrozen(ctx context.Context, account pda.Address, frozen bool) error {
	err := execOne(ctx, t.tx, `UPDATE ledger_accounts SET frozen=$2 WHERE address=$1`, account, frozen)
	if errors.Is(err, store.ErrNotFound) {
		return errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	return err
}
