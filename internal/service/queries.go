package service

import (
	"context"
	"errors"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
)

func (e *Engine) System(ctx context.Context) (*model.System, error) {
	var sys *model.System
	err := e.view(ctx, "get_system", func(o *op) error {
		if o.sys == nil {
			return NewNotFound("not_deployed", "The system has not been deployed")
		}
		sys = o.sys
		return nil
	})
	return sys, err
}

func (e *Engine) Channel(ctx context.Context, address string) (*model.PartnerChannel, error) {
	var ch *model.PartnerChannel
	err := e.view(ctx, "get_channel", func(o *op) error {
		var err error
		ch, err = o.loadChannel(address)
		return err
	})
	return ch, err
}

func (e *Engine) CardFund(ctx context.Context, address string) (*model.CardFund, error) {
	var fund *model.CardFund
	err := e.view(ctx, "get_card_fund", func(o *op) error {
		var err error
		fund, err = o.loadCardFund(address)
		return err
	})
	return fund, err
}

// CardFundFor resolves the fund a cardholder holds in a channel through the uniqueness index.
func (e *Engine) CardFundFor(ctx context.Context, channel, owner string) (*model.CardFund, error) {
	var fund *model.CardFund
	err := e.view(ctx, "get_card_fund_for", func(o *op) error {
		address, err := o.tx.FundIndex(ctx, model.FundKey(channel, owner))
		if errors.Is(err, store.ErrNotFound) {
			return NewNotFound("card_fund_not_found", "Card fund not found")
		}
		if err != nil {
			return err
		}
		fund, err = o.loadCardFund(address)
		return err
	})
	return fund, err
}

func (e *Engine) PendingWithdrawal(ctx context.Context, principal string) (*model.PendingWithdrawal, error) {
	var pending *model.PendingWithdrawal
	err := e.view(ctx, "get_pending_withdrawal", func(o *op) error {
		var err error
		pending, err = o.tx.PendingWithdrawal(ctx, principal)
		if errors.Is(err, store.ErrNotFound) {
			return NewNotFound("no_pending_withdrawal", "No pending withdrawal for this principal")
		}
		return err
	})
	return pending, err
}

func (e *Engine) AllowlistEntry(ctx context.Context, asset string) (*model.AllowlistEntry, error) {
	var entry *model.AllowlistEntry
	err := e.view(ctx, "get_allowlist_entry", func(o *op) error {
		var err error
		entry, err = o.loadAllowlistEntry(asset)
		return err
	})
	return entry, err
}

// Balance reads an account's balance of asset from the ledger.
func (e *Engine) Balance(ctx context.Context, account, asset string) (int64, error) {
	bal, err := e.assets.BalanceOf(ctx, account, asset)
	if err != nil {
		return 0, ledgerError(err, "read balance")
	}
	return bal, nil
}

func (e *Engine) Events(ctx context.Context, filter store.EventFilter) ([]*model.Event, int, error) {
	events, total, err := e.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, 0, e.internal("list_events", err)
	}
	return events, total, nil
}

// Ping reports whether the backing store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
