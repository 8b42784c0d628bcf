// Package store defines the transactional state the engine runs against.
package store

import (
	"context"
	"errors"

	"otc-exchange/internal/events"
	"otc-exchange/internal/ledger"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store opens transactions and serves committed reads.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of work. Reads through a Tx lock what they return until
// Commit or Rollback. Rollback after Commit is a no-op, so callers can defer it.
type Tx interface {
	ledger.Ledger
	ledger.Admin

	Platform(ctx context.Context, addr pda.Address) (*model.Platform, error)
	InsertPlatform(ctx context.Context, p *model.Platform) error
	PutPlatform(ctx context.Context, p *model.Platform) error

	Listing(ctx context.Context, addr pda.Address) (*model.Listing, error)
	InsertListing(ctx context.Context, l *model.Listing) error
	PutListing(ctx context.Context, l *model.Listing) error
	// RetireListing removes l from the live set and archives it with its terminal status.
	RetireListing(ctx context.Context, l *model.Listing) error
	// CountLiveListings counts maker's live listings on one platform.
	CountLiveListings(ctx context.Context, platform, maker pda.Address) (int, error)

	Profile(ctx context.Context, addr pda.Address) (*model.UserProfile, error)
	InsertProfile(ctx context.Context, p *model.UserProfile) error
	PutProfile(ctx context.Context, p *model.UserProfile) error

	Whitelist(ctx context.Context, addr pda.Address) (*model.WhitelistEntry, error)
	PutWhitelist(ctx context.Context, e *model.WhitelistEntry) error

	InsertFill(ctx context.Context, f *model.Fill) error
	AppendEvent(ctx context.Context, rec events.Record) error

	Commit() error
	Rollback() error
}

// Reader serves committed state to the API and background jobs.
type Reader interface {
	GetPlatform(ctx context.Context, addr pda.Address) (*model.Platform, error)
	ListPlatforms(ctx context.Context) ([]model.Platform, error)
	GetListing(ctx context.Context, addr pda.Address) (*model.Listing, error)
	GetRetiredListing(ctx context.Context, addr pda.Address) (*model.Listing, error)
	ListListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error)
	ListFills(ctx context.Context, listing pda.Address, limit int) ([]model.Fill, error)
	GetProfile(ctx context.Context, addr pda.Address) (*model.UserProfile, error)
	GetWhitelist(ctx context.Context, addr pda.Address) (*model.WhitelistEntry, error)
	GetHolding(ctx context.Context, addr pda.Address) (*model.Holding, error)
	ListHoldings(ctx context.Context, owner pda.Address) ([]model.Holding, error)
	ListEvents(ctx context.Context, listing *pda.Address, limit int) ([]model.EventLog, error)

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, addr pda.Address) (*model.User, error)
}
