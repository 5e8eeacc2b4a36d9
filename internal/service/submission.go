package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
)

// awaitingSubmission aborts a unit of work whose transfer has to be journaled and
// submitted before the nonce it consumes can be committed.
type awaitingSubmission struct {
	what     string
	sub      *model.LedgerSubmission
	replaces string
}

func (a *awaitingSubmission) Error() string {
	return a.what + " awaiting ledger submission"
}

func debitKey(cardFund string, nonce uint64) string {
	return "card_fund:" + cardFund + ":debit:" + strconv.FormatUint(nonce, 10)
}

func withdrawalKey(cardFund string, nonce uint64) string {
	return "card_fund:" + cardFund + ":withdrawal:" + strconv.FormatUint(nonce, 10)
}

func settlementKey(nonce uint64) string {
	return "settlement:" + strconv.FormatUint(nonce, 10)
}

// transferOnce moves funds for the nonce slot named by key at most once. The first call
// aborts the unit of work so update can journal and submit the transfer. The rerun finds
// the applied journal entry and deletes it in the same commit that advances the nonce.
// If that commit fails the entry survives and a retry completes without moving funds again.
func (e *Engine) transferOnce(o *op, key, from, to, asset string, amt int64, what string) error {
	if amt == 0 {
		return nil
	}
	sub, err := o.tx.LedgerSubmission(o.ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return e.prepareTransfer(o, key, from, to, asset, amt, what, "")
	}
	if err != nil {
		return err
	}

	if !sub.Applied {
		status, err := e.assets.TransferStatus(o.ctx, sub.Transfer)
		if err != nil {
			return ledgerError(err, "resolve "+what)
		}
		switch status {
		case model.TransferPending:
			return NewUnavailable("transfer_pending", "An earlier "+what+" has not settled on the ledger yet; retry later")
		case model.TransferFailed:
			return e.prepareTransfer(o, key, from, to, asset, amt, what, sub.Transfer.Reference)
		}
	}
	if !sub.Matches(from, to, asset, amt) {
		return NewInvalidState("transfer_in_flight",
			"A different "+what+" was already applied for this nonce; retry it with the same terms")
	}
	log.Info().Str("key", key).Str("reference", sub.Transfer.Reference).Msg("completing journaled transfer")
	return o.tx.DeleteLedgerSubmission(o.ctx, key)
}

func (e *Engine) prepareTransfer(o *op, key, from, to, asset string, amt int64, what, replaces string) error {
	p, err := e.assets.PrepareTransfer(o.ctx, from, to, asset, amt)
	if err != nil {
		return ledgerError(err, what)
	}
	return &awaitingSubmission{
		what: what,
		sub: &model.LedgerSubmission{
			Key:       key,
			From:      from,
			To:        to,
			Asset:     asset,
			Amount:    amt,
			Transfer:  p,
			CreatedAt: o.now,
		},
		replaces: replaces,
	}
}

// submit journals a prepared transfer, hands it to the ledger and marks it applied. A
// rejected transfer drops its journal entry. An unconfirmed one keeps it so the next
// attempt can resolve the outcome by reference.
func (e *Engine) submit(ctx context.Context, a *awaitingSubmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sub := a.sub
	err := e.store.Update(ctx, func(tx store.Tx) error {
		existing, err := tx.LedgerSubmission(ctx, sub.Key)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.Transfer.Reference != a.replaces:
			return NewUnavailable("transfer_pending", "Another "+a.what+" for this nonce is in progress; retry later")
		}
		return tx.PutLedgerSubmission(ctx, sub)
	})
	if err != nil {
		return fmt.Errorf("journal %s: %w", a.what, err)
	}

	detached := context.WithoutCancel(ctx)
	if err := e.assets.SubmitTransfer(ctx, sub.Transfer); err != nil {
		if !errors.Is(err, model.ErrTransferRejected) {
			log.Warn().Err(err).Str("key", sub.Key).Str("reference", sub.Transfer.Reference).Msg("transfer outcome unknown")
			return NewUnavailable("transfer_pending", "The ledger has not confirmed the "+a.what+"; retry with the same terms")
		}
		derr := e.store.Update(detached, func(tx store.Tx) error {
			return tx.DeleteLedgerSubmission(detached, sub.Key)
		})
		if derr != nil {
			log.Error().Err(derr).Str("key", sub.Key).Msg("failed to drop rejected transfer from journal")
		}
		return ledgerError(err, a.what)
	}

	sub.Applied = true
	err = e.store.Update(detached, func(tx store.Tx) error {
		return tx.PutLedgerSubmission(detached, sub)
	})
	if err != nil {
		log.Error().Err(err).Str("key", sub.Key).Str("reference", sub.Transfer.Reference).Msg("failed to mark transfer applied")
	}
	return nil
}
