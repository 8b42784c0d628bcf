package model

import (
	"otc-exchange/internal/calc"
	"otc-exchange/internal/errs"
	"otc-exchange/internal/pda"
)

type ListingStatus string

const (
	ListingPending         ListingStatus = "PENDING"
	ListingActive          ListingStatus = "ACTIVE"
	ListingPartiallyFilled ListingStatus = "PARTIALLY_FILLED"
	ListingCompleted       ListingStatus = "COMPLETED"
	ListingCancelled       ListingStatus = "CANCELLED"
	ListingExpired         ListingStatus = "EXPIRED"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingPending, ListingActive, ListingPartiallyFilled,
		ListingCompleted, ListingCancelled, ListingExpired:
		return true
	}
	return false
}

// IsTradable reports whether fills are accepted in this status.
func (s ListingStatus) IsTradable() bool {
	return s == ListingActive || s == ListingPartiallyFilled
}

func (s ListingStatus) CanBeCancelled() bool {
	return s == ListingActive || s == ListingPartiallyFilled
}

func (s ListingStatus) IsTerminal() bool {
	return s == ListingCompleted || s == ListingCancelled || s == ListingExpired
}

// allowed lists the legal successors of each status. A listing never leaves a terminal
// status and never moves back to an earlier one.
var allowed = map[ListingStatus][]ListingStatus{
	ListingPending:         {ListingActive, ListingCancelled, ListingExpired},
	ListingActive:          {ListingPartiallyFilled, ListingCompleted, ListingCancelled, ListingExpired},
	ListingPartiallyFilled: {ListingPartiallyFilled, ListingCompleted, ListingCancelled, ListingExpired},
}

func (s ListingStatus) CanTransitionTo(to ListingStatus) bool {
	for _, next := range allowed[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Listing is a maker's offer of source units in exchange for destination units.
// While it is live, its vault holds exactly AmountSourceRemaining.
type Listing struct {
	Address                    pda.Address   `json:"address"`
	Platform                   pda.Address   `json:"platform"`
	ID                         uint64        `json:"id"`
	Maker                      pda.Address   `json:"maker"`
	SourceMint                 pda.Address   `json:"source_mint"`
	DestinationMint            pda.Address   `json:"destination_mint"`
	AmountSourceTotal          uint64        `json:"amount_source_total"`
	AmountSourceRemaining      uint64        `json:"amount_source_remaining"`
	AmountDestinationTotal     uint64        `json:"amount_destination_total"`
	AmountDestinationRemaining uint64        `json:"amount_destination_remaining"`
	MinFillAmount              uint64        `json:"min_fill_amount"`
	MaxSlippageBps             uint16        `json:"max_slippage_bps"`
	ExpiresAt                  int64         `json:"expires_at"`
	CreatedAt                  int64         `json:"created_at"`
	UpdatedAt                  int64         `json:"updated_at"`
	Status                     ListingStatus `json:"status"`
	FillCount                  uint32        `json:"fill_count"`
	Vault                      pda.Address   `json:"vault"`
	Bump                       uint8         `json:"bump"`
	VaultBump                  uint8         `json:"vault_bump"`
	RetiredAt                  int64         `json:"retired_at,omitempty"`
}

func (l *Listing) IsExpired(now int64) bool { return now >= l.ExpiresAt }

func (l *Listing) CanBeTraded(now int64) bool {
	return l.Status.IsTradable() && !l.IsExpired(now)
}

// Filled reports how many source units have been taken.
func (l *Listing) Filled() uint64 {
	return l.AmountSourceTotal - l.AmountSourceRemaining
}

// Rate is the quoted price of the remaining amounts, destination per source x10000.
func (l *Listing) Rate() (uint64, error) {
	return calc.Rate(l.AmountSourceRemaining, l.AmountDestinationRemaining)
}

// Transition moves the listing to status to if that move is legal.
func (l *Listing) Transition(to ListingStatus, now int64) error {
	if !l.Status.CanTransitionTo(to) {
		return errs.ErrInvalidStatusTransition.Withf("%s -> %s", l.Status, to)
	}
	l.Status = to
	l.UpdatedAt = now
	return nil
}

// ApplyFill deducts a fill from the remaining amounts.
func (l *Listing) ApplyFill(src, dst uint64, now int64) error {
	remSrc, err := calc.CheckedSub(l.AmountSourceRemaining, src)
	if err != nil {
		return err
	}
	remDst, err := calc.CheckedSub(l.AmountDestinationRemaining, dst)
	if err != nil {
		return err
	}
	next := ListingPartiallyFilled
	if remSrc == 0 {
		next = ListingCompleted
	}
	if err := l.Transition(next, now); err != nil {
		return err
	}
	l.AmountSourceRemaining = remSrc
	l.AmountDestinationRemaining = remDst
	l.FillCount = calc.SaturatingAdd32(l.FillCount, 1)
	return nil
}

// Reprice sets a new total destination amount. After a partial fill the remaining
// destination is rescaled to the remaining source share so the unfilled part is
// offered at the new price.
func (l *Listing) Reprice(newTotalDst uint64, now int64) error {
	remDst := newTotalDst
	if l.Filled() > 0 {
		var err error
		remDst, err = calc.MulDiv(newTotalDst, l.AmountSourceRemaining, l.AmountSourceTotal)
		if err != nil {
			return err
		}
	}
	if remDst == 0 {
		return errs.ErrInvalidCalculation.Withf("repriced remaining destination rounds to zero")
	}
	l.AmountDestinationTotal = newTotalDst
	l.AmountDestinationRemaining = remDst
	l.UpdatedAt = now
	return nil
}
