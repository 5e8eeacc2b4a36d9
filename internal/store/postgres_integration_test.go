//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/card-fund-service/internal/model"
)

func TestPostgresStoreCardFundLifecycleIntegration(t *testing.T) {
	ctx := context.Background()
	pg := setupIntegrationStore(t)

	channel := randomAddress(t)
	fundAddr := randomAddress(t)
	owner := randomAddress(t)
	key := model.FundKey(channel, owner)

	err := pg.Update(ctx, func(tx Tx) error {
		if err := tx.PutSystem(ctx, &model.System{
			Owner: owner, Settler: owner, Pauser: owner,
			WithdrawalWaitTime: 500 * time.Second, Version: 1, DeployedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := tx.PutChannel(ctx, &model.PartnerChannel{Address: channel, Name: "acme", CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		if err := tx.PutCardFund(ctx, &model.CardFund{
			Address: fundAddr, PartnerChannel: channel, Owner: owner,
			Assets: []string{"USDC:" + owner}, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return tx.InsertFundIndex(ctx, key, fundAddr)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = pg.Update(ctx, func(tx Tx) error {
		f, err := tx.CardFund(ctx, fundAddr)
		if err != nil {
			return err
		}
		f.DebitNonce++
		f.WithdrawalNonce += 2
		return tx.PutCardFund(ctx, f)
	})
	if err != nil {
		t.Fatalf("bump nonces: %v", err)
	}

	err = pg.View(ctx, func(tx Tx) error {
		sys, err := tx.System(ctx)
		if err != nil {
			return err
		}
		if sys.WithdrawalWaitTime != 500*time.Second {
			t.Fatalf("unexpected wait time: %s", sys.WithdrawalWaitTime)
		}
		f, err := tx.CardFund(ctx, fundAddr)
		if err != nil {
			return err
		}
		if f.DebitNonce != 1 || f.WithdrawalNonce != 2 {
			t.Fatalf("unexpected nonces: debit=%d withdrawal=%d", f.DebitNonce, f.WithdrawalNonce)
		}
		if len(f.Assets) != 1 {
			t.Fatalf("unexpected assets: %v", f.Assets)
		}
		addr, err := tx.FundIndex(ctx, key)
		if err != nil {
			return err
		}
		if addr != fundAddr {
			t.Fatalf("unexpected index target: %s", addr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	err = pg.Update(ctx, func(tx Tx) error {
		return tx.InsertFundIndex(ctx, key, fundAddr)
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate index insert to fail, got %v", err)
	}
}

func TestPostgresStoreRollbackAndEventsIntegration(t *testing.T) {
	ctx := context.Background()
	pg := setupIntegrationStore(t)

	boom := errors.New("boom")
	err := pg.Update(ctx, func(tx Tx) error {
		if err := tx.ConsumeFundingProof(ctx, "ref-rollback"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if err := pg.Update(ctx, func(tx Tx) error { return tx.ConsumeFundingProof(ctx, "ref-rollback") }); err != nil {
		t.Fatalf("expected rolled back reference to be consumable, got %v", err)
	}

	fund := randomAddress(t)
	err = pg.Update(ctx, func(tx Tx) error {
		for _, kind := range []model.EventKind{model.EventDebit, model.EventRefund, model.EventDebit} {
			if err := tx.AppendEvent(ctx, &model.Event{
				ID: uuid.New(), Kind: kind, CardFund: fund,
				Attributes: map[string]string{"amount": "10"}, CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append events: %v", err)
	}

	kind := model.EventDebit
	events, total, err := pg.ListEvents(ctx, EventFilter{CardFund: &fund, Kind: &kind, Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("unexpected filtered events: total=%d len=%d", total, len(events))
	}
	if events[0].Attributes["amount"] != "10" {
		t.Fatalf("unexpected attributes: %v", events[0].Attributes)
	}
}

func setupIntegrationStore(t *testing.T) *Postgres {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("ping pg: %v", err)
	}

	if _, err := pool.Exec(context.Background(), `
		TRUNCATE TABLE events, funding_proofs, pending_withdrawals, ledger_submissions, asset_allowlist,
		               card_fund_index, card_funds, partner_channels, system_state RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewPostgres(pool)
}

func randomAddress(t *testing.T) string {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	return kp.Address()
}

func TestPostgresStoreWithdrawalJournalIntegration(t *testing.T) {
	ctx := context.Background()
	pg := setupIntegrationStore(t)

	principal := randomAddress(t)
	fundAddr := randomAddress(t)
	created := time.Now().UTC().Truncate(time.Microsecond)
	releasable := created.Add(500 * time.Second).Truncate(time.Second).Add(time.Second)
	sub := &model.LedgerSubmission{
		Key:    "card_fund:" + fundAddr + ":withdrawal:0",
		From:   fundAddr,
		To:     principal,
		Asset:  "USDC:" + principal,
		Amount: 25,
		Transfer: model.PreparedTransfer{
			Reference:  "ab12",
			Envelope:   "AAAA",
			ValidUntil: created.Add(5 * time.Minute),
		},
		CreatedAt: created,
	}

	err := pg.Update(ctx, func(tx Tx) error {
		if err := tx.InsertPendingWithdrawal(ctx, &model.PendingWithdrawal{
			Principal: principal, CardFund: fundAddr, Recipient: principal, Asset: sub.Asset,
			Amount: 25, CreatedAt: created, ReleasableAt: releasable,
		}); err != nil {
			return err
		}
		return tx.PutLedgerSubmission(ctx, sub)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	sub.Applied = true
	if err := pg.Update(ctx, func(tx Tx) error { return tx.PutLedgerSubmission(ctx, sub) }); err != nil {
		t.Fatalf("mark applied: %v", err)
	}

	err = pg.View(ctx, func(tx Tx) error {
		p, err := tx.PendingWithdrawal(ctx, principal)
		if err != nil {
			return err
		}
		if !p.ReleasableAt.Equal(releasable) {
			t.Fatalf("expected releasable_at %s, got %s", releasable, p.ReleasableAt)
		}
		got, err := tx.LedgerSubmission(ctx, sub.Key)
		if err != nil {
			return err
		}
		if !got.Applied || got.Transfer.Reference != "ab12" || !got.Matches(fundAddr, principal, sub.Asset, 25) {
			t.Fatalf("unexpected journal entry: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if err := pg.Update(ctx, func(tx Tx) error { return tx.DeleteLedgerSubmission(ctx, sub.Key) }); err != nil {
		t.Fatalf("delete journal entry: %v", err)
	}
	err = pg.View(ctx, func(tx Tx) error {
		_, err := tx.LedgerSubmission(ctx, sub.Key)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected journal entry to be gone, got %v", err)
	}
}
