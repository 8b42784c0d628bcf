package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

const logModule = "events"

type Kind string

const (
	KindPlatformInitialized   Kind = "platform.initialized"
	KindPlatformConfigUpdated Kind = "platform.config_updated"
	KindPlatformPaused        Kind = "platform.paused"
	KindPlatformResumed       Kind = "platform.resumed"
	KindFeeCollectorUpdated   Kind = "platform.fee_collector_updated"
	KindWhitelistUpdated      Kind = "platform.whitelist_updated"
	KindListingCreated        Kind = "listing.created"
	KindListingUpdated        Kind = "listing.updated"
	KindListingCancelled      Kind = "listing.cancelled"
	KindListingExpired        Kind = "listing.expired"
	KindSwapExecuted          Kind = "swap.executed"
	KindUserProfileCreated    Kind = "user.profile_created"
	KindUserPreferences       Kind = "user.preferences_updated"
)

// Record is the structured trace of one completed operation.
type Record struct {
	ID                string              `json:"id"`
	Kind              Kind                `json:"kind"`
	Platform          *pda.Address        `json:"platform,omitempty"`
	Listing           *pda.Address        `json:"listing,omitempty"`
	ListingID         uint64              `json:"listing_id,omitempty"`
	Maker             *pda.Address        `json:"maker,omitempty"`
	Taker             *pda.Address        `json:"taker,omitempty"`
	Actor             pda.Address         `json:"actor"`
	SourceMint        *pda.Address        `json:"source_mint,omitempty"`
	DestinationMint   *pda.Address        `json:"destination_mint,omitempty"`
	AmountSource      uint64              `json:"amount_source,omitempty"`
	AmountDestination uint64              `json:"amount_destination,omitempty"`
	FeeAmount         uint64              `json:"fee_amount,omitempty"`
	Status            model.ListingStatus `json:"status,omitempty"`
	Timestamp         int64               `json:"timestamp"`
	Attrs             map[string]any      `json:"attrs,omitempty"`
}

// New stamps a record with a fresh id.
func New(kind Kind, actor pda.Address, ts int64) Record {
	return Record{ID: uuid.NewString(), Kind: kind, Actor: actor, Timestamp: ts}
}

// ForListing fills the listing-scoped fields of r from l.
func (r Record) ForListing(l *model.Listing) Record {
	listing, platform, maker := l.Address, l.Platform, l.Maker
	src, dst := l.SourceMint, l.DestinationMint
	r.Listing = &listing
	r.Platform = &platform
	r.Maker = &maker
	r.SourceMint = &src
	r.DestinationMint = &dst
	r.ListingID = l.ID
	r.Status = l.Status
	return r
}

// Payload flattens r into the JSON object stored in the event log.
func (r Record) Payload() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Record) With(key string, value any) Record {
	attrs := make(map[string]any, len(r.Attrs)+1)
	for k, v := range r.Attrs {
		attrs[k] = v
	}
	attrs[key] = value
	r.Attrs = attrs
	return r
}

// Emitter delivers committed records to observers. Delivery is best effort: an
// emitter never reports failure back to the operation that produced the record.
type Emitter interface {
	Emit(ctx context.Context, rec Record)
}

// NoopEmitter discards records.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, Record) {}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, rec Record)

func (f EmitterFunc) Emit(ctx context.Context, rec Record) { f(ctx, rec) }

// Fanout forwards each record to every sink in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Emitter
}

func NewFanout(sinks ...Emitter) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Add(sink Emitter) {
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *Fanout) Emit(ctx context.Context, rec Record) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{"module": logModule, "kind": rec.Kind, "panic": r}).Error("event sink panicked")
				}
			}()
			s.Emit(ctx, rec)
		}()
	}
}
