package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/metrics"
	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
)

// AccountProvisioner creates custodial accounts controlled by the holding key.
type AccountProvisioner interface {
	Provision(ctx context.Context, startingBalance int64) (string, error)
	Teardown(ctx context.Context, account, closeTo string) error
}

// AssetTransferer moves assets between accounts. Implementations wrap
// model.ErrInsufficientBalance, model.ErrNotOptedIn and model.ErrAccountNotEmpty.
//
// PrepareTransfer, SubmitTransfer and TransferStatus split a transfer so it can be
// journaled before it reaches the ledger. SubmitTransfer wraps model.ErrTransferRejected
// when the transfer definitely did not apply.
type AssetTransferer interface {
	Transfer(ctx context.Context, from, to, asset string, amount int64) error
	OptIn(ctx context.Context, account, asset string) error
	CloseOut(ctx context.Context, account, asset, closeTo string) error
	BalanceOf(ctx context.Context, account, asset string) (int64, error)

	PrepareTransfer(ctx context.Context, from, to, asset string, amount int64) (model.PreparedTransfer, error)
	SubmitTransfer(ctx context.Context, p model.PreparedTransfer) error
	TransferStatus(ctx context.Context, p model.PreparedTransfer) (model.TransferStatus, error)
}

// SignatureVerifier checks a detached signature over message.
type SignatureVerifier interface {
	Verify(message, signature []byte, publicKey string) error
}

// FundingVerifier resolves a funding proof to the payment it references.
type FundingVerifier interface {
	VerifyFunding(ctx context.Context, proof model.FundingProof, payee string) (model.FundingReceipt, error)
}

// EventPublisher receives events after the unit of work that produced them commits.
type EventPublisher interface {
	Publish(ctx context.Context, events []*model.Event)
}

type Options struct {
	Store      store.Store
	Accounts   AccountProvisioner
	Assets     AssetTransferer
	Signatures SignatureVerifier
	Funding    FundingVerifier
	Publisher  EventPublisher

	// HoldingAddress is the system account that receives debits and funds provisioning.
	HoldingAddress  string
	Costs           model.CostSchedule
	DomainSeparator [32]byte
	DefaultWaitTime time.Duration
	AllowZeroAmount bool
	Now             func() time.Time
}

// Engine runs every card fund state transition as one all-or-nothing unit of work.
type Engine struct {
	mu sync.Mutex

	store      store.Store
	accounts   AccountProvisioner
	assets     AssetTransferer
	signatures SignatureVerifier
	funding    FundingVerifier
	publisher  EventPublisher

	holding         string
	costs           model.CostSchedule
	domain          [32]byte
	defaultWait     time.Duration
	allowZeroAmount bool
	now             func() time.Time
}

func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Engine{
		store:           opts.Store,
		accounts:        opts.Accounts,
		assets:          opts.Assets,
		signatures:      opts.Signatures,
		funding:         opts.Funding,
		publisher:       publisher,
		holding:         opts.HoldingAddress,
		costs:           opts.Costs,
		domain:          opts.DomainSeparator,
		defaultWait:     opts.DefaultWaitTime,
		allowZeroAmount: opts.AllowZeroAmount,
		now:             now,
	}
}

// HoldingAddress returns the system holding account.
func (e *Engine) HoldingAddress() string {
	return e.holding
}

// Costs returns the cost schedule quotes are priced from.
func (e *Engine) Costs() model.CostSchedule {
	return e.costs
}

// DomainSeparator returns the value approval signatures are bound to.
func (e *Engine) DomainSeparator() [32]byte {
	return e.domain
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, []*model.Event) {}

// op carries the state of one unit of work.
type op struct {
	ctx    context.Context
	tx     store.Tx
	sys    *model.System
	caller string
	now    time.Time

	events []*model.Event
	undo   []func(ctx context.Context)
}

func (o *op) emit(kind model.EventKind, cardFund string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	o.events = append(o.events, &model.Event{
		ID:         uuid.New(),
		Kind:       kind,
		CardFund:   cardFund,
		Attributes: attrs,
		CreatedAt:  o.now,
	})
}

// onRollback registers a compensating ledger action, run in reverse order if the unit
// of work fails after the effect it undoes.
func (o *op) onRollback(fn func(ctx context.Context)) {
	o.undo = append(o.undo, fn)
}

// run executes fn against a deployed, live system.
func (e *Engine) run(ctx context.Context, name, caller string, fn func(o *op) error) error {
	return e.update(ctx, name, caller, func(o *op) error {
		if o.sys == nil {
			return NewInvalidState("not_deployed", "The system has not been deployed")
		}
		if o.sys.Destroyed {
			return NewInvalidState("destroyed", "The system has been destroyed")
		}
		return fn(o)
	})
}

func (e *Engine) update(ctx context.Context, name, caller string, fn func(o *op) error) error {
	start := time.Now()
	e.mu.Lock()

	now := e.now().UTC()
	var committed *op
	var err error
	for submitted := false; ; submitted = true {
		committed, err = e.attempt(ctx, caller, now, fn)
		var awaiting *awaitingSubmission
		if !errors.As(err, &awaiting) {
			break
		}
		if submitted {
			err = fmt.Errorf("%s: more than one transfer to submit", name)
			break
		}
		if err = e.submit(ctx, awaiting); err != nil {
			break
		}
	}
	e.mu.Unlock()

	err = e.internal(name, err)
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.OperationsTotal.WithLabelValues(name, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if committed.sys != nil {
		metrics.ActiveCardFunds.Set(float64(committed.sys.ActiveCardFunds))
		metrics.ActiveChannels.Set(float64(committed.sys.ActiveChannels))
		paused := 0.0
		if committed.sys.Paused {
			paused = 1
		}
		metrics.Paused.Set(paused)
	}
	e.publisher.Publish(ctx, committed.events)
	return nil
}

// attempt runs fn in one store transaction and undoes its ledger effects if it fails.
func (e *Engine) attempt(ctx context.Context, caller string, now time.Time, fn func(o *op) error) (*op, error) {
	var committed *op
	var undo []func(ctx context.Context)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		o := &op{ctx: ctx, tx: tx, caller: caller, now: now}
		undo = nil

		sys, err := tx.System(ctx)
		switch {
		case err == nil:
			o.sys = sys
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load system: %w", err)
		}

		err = fn(o)
		undo = o.undo
		if err != nil {
			return err
		}
		if o.sys != nil {
			if err := tx.PutSystem(ctx, o.sys); err != nil {
				return fmt.Errorf("save system: %w", err)
			}
		}
		for _, ev := range o.events {
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return fmt.Errorf("append event: %w", err)
			}
		}
		committed = o
		return nil
	})
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i](context.WithoutCancel(ctx))
		}
		return nil, err
	}
	return committed, nil
}

// view runs fn against a read-only snapshot.
func (e *Engine) view(ctx context.Context, name string, fn func(o *op) error) error {
	err := e.store.View(ctx, func(tx store.Tx) error {
		o := &op{ctx: ctx, tx: tx, now: e.now().UTC()}
		sys, err := tx.System(ctx)
		switch {
		case err == nil:
			o.sys = sys
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load system: %w", err)
		}
		return fn(o)
	})
	return e.internal(name, err)
}

// internal passes service errors through and hides everything else behind a 500.
func (e *Engine) internal(name string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewUnavailable("request_cancelled", "The request was cancelled before it completed")
	}
	log.Error().Err(err).Str("operation", name).Msg("operation failed")
	return NewInternal("internal_error", "Failed to complete "+name)
}

// ledgerError translates a collaborator failure into a domain error.
func ledgerError(err error, what string) error {
	switch {
	case errors.Is(err, model.ErrInsufficientBalance):
		return NewInsufficientFunds("insufficient_balance", "Insufficient balance to "+what)
	case errors.Is(err, model.ErrNotOptedIn):
		return NewInvalidState("asset_not_enabled", "Account is not opted in to the asset to "+what)
	case errors.Is(err, model.ErrAccountNotEmpty):
		return NewInvalidState("account_not_empty", "Account still holds assets and cannot "+what)
	case errors.Is(err, model.ErrAccountNotFound):
		return NewNotFound("account_not_found", "Ledger account not found to "+what)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewUnavailable("ledger_timeout", "Ledger did not respond in time to "+what)
	default:
		log.Error().Err(err).Str("action", what).Msg("ledger call failed")
		return NewBadGateway("ledger_error", "Ledger failed to "+what)
	}
}

func (e *Engine) transfer(o *op, from, to, asset string, amt int64, what string) error {
	if amt == 0 {
		return nil
	}
	if err := e.assets.Transfer(o.ctx, from, to, asset, amt); err != nil {
		return ledgerError(err, what)
	}
	return nil
}

func (e *Engine) balanceOf(o *op, account, asset string) (int64, error) {
	bal, err := e.assets.BalanceOf(o.ctx, account, asset)
	if err != nil {
		return 0, ledgerError(err, "read balance")
	}
	return bal, nil
}

// requireFunding checks that proof references an unused payment from the caller to the
// holding account covering quote, and consumes it.
func (e *Engine) requireFunding(o *op, proof *model.FundingProof, quote model.Quote) error {
	if quote.Total <= 0 {
		return nil
	}
	if proof == nil || proof.Reference == "" {
		return NewBadRequest("funding_required", fmt.Sprintf("A funding proof covering %d stroops is required", quote.Total))
	}
	receipt, err := e.funding.VerifyFunding(o.ctx, *proof, e.holding)
	switch {
	case errors.Is(err, model.ErrFundingNotFound):
		return NewNotFound("funding_not_found", "Funding payment not found")
	case errors.Is(err, model.ErrFundingInvalid):
		return NewBadRequest("funding_invalid", "Funding payment cannot be used as a funding proof")
	case err != nil:
		return ledgerError(err, "verify funding")
	}
	if receipt.Payer != o.caller {
		return NewUnauthorized("funding_payer_mismatch", "Funding payment was not made by the caller")
	}
	if receipt.Amount < quote.Total {
		return NewInsufficientFunds("underfunded",
			fmt.Sprintf("Funding payment of %d stroops does not cover the required %d", receipt.Amount, quote.Total))
	}
	if err := o.tx.ConsumeFundingProof(o.ctx, proof.Reference); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return NewAlreadyExists("funding_already_used", "Funding payment has already been used")
		}
		return err
	}
	return nil
}

func (e *Engine) checkAmount(amt int64) error {
	if amt < 0 {
		return NewBadRequest("invalid_amount", "Amount must not be negative")
	}
	if amt == 0 && !e.allowZeroAmount {
		return NewBadRequest("invalid_amount", "Amount must be positive")
	}
	return nil
}

func positiveAmount(amt int64) error {
	if amt <= 0 {
		return NewBadRequest("invalid_amount", "Amount must be positive")
	}
	return nil
}

func (o *op) loadCardFund(address string) (*model.CardFund, error) {
	f, err := o.tx.CardFund(o.ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFound("card_fund_not_found", "Card fund not found")
	}
	return f, err
}

func (o *op) loadChannel(address string) (*model.PartnerChannel, error) {
	ch, err := o.tx.Channel(o.ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFound("channel_not_found", "Partner channel not found")
	}
	return ch, err
}

func (o *op) loadAllowlistEntry(asset string) (*model.AllowlistEntry, error) {
	entry, err := o.tx.AllowlistEntry(o.ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFound("asset_not_allowlisted", "Asset is not on the allowlist")
	}
	return entry, err
}
