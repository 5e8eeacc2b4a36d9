package store

import (
	"context"
	"errors"

	"github.com/card-fund-service/internal/model"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing unique key.
	ErrDuplicate = errors.New("duplicate")
)

// Store persists the card fund state. Update runs fn inside one serialized unit of work and
// commits only if fn returns nil. View runs fn against a consistent read-only snapshot.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, int, error)
	Ping(ctx context.Context) error
}

// Tx exposes keyed access to every persisted record within one unit of work.
type Tx interface {
	System(ctx context.Context) (*model.System, error)
	PutSystem(ctx context.Context, sys *model.System) error

	Channel(ctx context.Context, address string) (*model.PartnerChannel, error)
	ChannelByName(ctx context.Context, name string) (*model.PartnerChannel, error)
	PutChannel(ctx context.Context, ch *model.PartnerChannel) error
	DeleteChannel(ctx context.Context, address string) error

	CardFund(ctx context.Context, address string) (*model.CardFund, error)
	PutCardFund(ctx context.Context, fund *model.CardFund) error
	DeleteCardFund(ctx context.Context, address string) error

	// FundIndex resolves a model.FundKey to the card fund address it points at.
	FundIndex(ctx context.Context, key string) (string, error)
	InsertFundIndex(ctx context.Context, key, address string) error
	DeleteFundIndex(ctx context.Context, key string) error

	AllowlistEntry(ctx context.Context, asset string) (*model.AllowlistEntry, error)
	PutAllowlistEntry(ctx context.Context, entry *model.AllowlistEntry) error
	DeleteAllowlistEntry(ctx context.Context, asset string) error

	PendingWithdrawal(ctx context.Context, principal string) (*model.PendingWithdrawal, error)
	InsertPendingWithdrawal(ctx context.Context, pending *model.PendingWithdrawal) error
	DeletePendingWithdrawal(ctx context.Context, principal string) error

	// LedgerSubmission returns the journaled transfer for a nonce slot.
	LedgerSubmission(ctx context.Context, key string) (*model.LedgerSubmission, error)
	PutLedgerSubmission(ctx context.Context, sub *model.LedgerSubmission) error
	DeleteLedgerSubmission(ctx context.Context, key string) error

	// ConsumeFundingProof marks a funding reference as spent. It returns ErrDuplicate
	// when the reference was already consumed.
	ConsumeFundingProof(ctx context.Context, reference string) error

	AppendEvent(ctx context.Context, event *model.Event) error
}

type EventFilter struct {
	CardFund *string
	Kind     *model.EventKind
	Page     int
	PerPage  int
}

func (f EventFilter) normalized() (page, perPage int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	perPage = f.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func (f EventFilter) matches(e *model.Event) bool {
	if f.CardFund != nil && e.CardFund != *f.CardFund {
		return false
	}
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	return true
}
