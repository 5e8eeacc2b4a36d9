package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/card-fund-service/internal/ledger"
	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
)

// failingCommit rolls back units of work that append events while failures remain.
type failingCommit struct {
	store.Store
	failures int
}

type eventTx struct {
	store.Tx
	appended bool
}

func (t *eventTx) AppendEvent(ctx context.Context, event *model.Event) error {
	t.appended = true
	return t.Tx.AppendEvent(ctx, event)
}

func (s *failingCommit) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Update(ctx, func(tx store.Tx) error {
		etx := &eventTx{Tx: tx}
		if err := fn(etx); err != nil {
			return err
		}
		if etx.appended && s.failures > 0 {
			s.failures--
			return errors.New("commit: connection reset")
		}
		return nil
	})
}

func withFailingCommits(commits *failingCommit) fixtureOption {
	return withStore(func(s *store.Memory) store.Store {
		commits.Store = s
		return commits
	})
}

func (f *fixture) journaled(key string) bool {
	f.t.Helper()
	var found bool
	err := f.store.View(f.ctx, func(tx store.Tx) error {
		_, err := tx.LedgerSubmission(f.ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		f.t.Fatalf("read journal: %v", err)
	}
	return found
}

func TestDebitRetryAfterFailedCommitMovesFundsOnce(t *testing.T) {
	commits := &failingCommit{}
	f := newFixture(t, withFailingCommits(commits))
	fund, _ := f.setup(100)
	in := DebitInput{CardFund: fund.Address, Asset: f.asset, Amount: 40}

	commits.failures = 1
	_, err := f.engine.Debit(f.ctx, f.settler.Address(), in)
	requireKind(t, err, ErrInternal)
	if got := f.fund(fund.Address).DebitNonce; got != 0 {
		t.Fatalf("failed commit must not advance the nonce, got %d", got)
	}
	if f.balance(fund.Address) != 60 {
		t.Fatalf("expected the ledger transfer to have applied, fund=%d", f.balance(fund.Address))
	}
	if !f.journaled(debitKey(fund.Address, 0)) {
		t.Fatal("expected the applied transfer to stay journaled")
	}

	t.Run("retry with other terms is refused", func(t *testing.T) {
		other := in
		other.Amount = 30
		_, err := f.engine.Debit(f.ctx, f.settler.Address(), other)
		requireKind(t, err, ErrInvalidState)
	})

	updated, err := f.engine.Debit(f.ctx, f.settler.Address(), in)
	if err != nil {
		t.Fatalf("retry debit: %v", err)
	}
	if updated.DebitNonce != 1 {
		t.Fatalf("expected debit nonce 1, got %d", updated.DebitNonce)
	}
	if f.balance(fund.Address) != 60 || f.balance(f.holding) != 40 {
		t.Fatalf("expected a single debit: fund=%d holding=%d", f.balance(fund.Address), f.balance(f.holding))
	}
	if f.journaled(debitKey(fund.Address, 0)) {
		t.Fatal("expected the journal entry to be consumed by the commit")
	}
	if last := f.published.last(); last.Kind != model.EventDebit || last.Attributes["nonce"] != "0" {
		t.Fatalf("unexpected final event: %+v", last)
	}

	_, err = f.engine.Debit(f.ctx, f.settler.Address(), in)
	requireKind(t, err, ErrNonceMismatch)
	if f.balance(fund.Address) != 60 {
		t.Fatalf("replay must not move funds, fund=%d", f.balance(fund.Address))
	}
}

func TestSettleRetryAfterFailedCommitMovesFundsOnce(t *testing.T) {
	commits := &failingCommit{}
	f := newFixture(t, withFailingCommits(commits))
	f.deploy()
	settlement := f.allowlist()
	fund := f.cardFund(f.channel("acme"), randomKeypair(t), 100)
	if _, err := f.engine.Debit(f.ctx, f.settler.Address(), DebitInput{CardFund: fund.Address, Asset: f.asset, Amount: 100}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	commits.failures = 1
	_, err := f.engine.Settle(f.ctx, f.settler.Address(), f.asset, 70, 0)
	requireKind(t, err, ErrInternal)
	if got := f.system().SettlementNonce; got != 0 {
		t.Fatalf("failed commit must not advance the settlement nonce, got %d", got)
	}

	next, err := f.engine.Settle(f.ctx, f.settler.Address(), f.asset, 70, 0)
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected next settlement nonce 1, got %d", next)
	}
	if f.balance(settlement) != 70 || f.balance(f.holding) != 30 {
		t.Fatalf("expected a single settlement: settlement=%d holding=%d", f.balance(settlement), f.balance(f.holding))
	}
}

func TestApprovedWithdrawalRetryAfterFailedCommitMovesFundsOnce(t *testing.T) {
	commits := &failingCommit{}
	f := newFixture(t, withFailingCommits(commits))
	fund, holder := f.setup(100)

	in := ApprovedWithdrawalInput{CardFund: fund.Address, Asset: f.asset, Amount: 25, ExpiresAt: f.now.Add(time.Minute)}
	in.Signature = signApproval(t, f, f.settler, in, holder.Address())

	commits.failures = 1
	_, err := f.engine.ExecuteApprovedWithdrawal(f.ctx, holder.Address(), in)
	requireKind(t, err, ErrInternal)

	updated, err := f.engine.ExecuteApprovedWithdrawal(f.ctx, holder.Address(), in)
	if err != nil {
		t.Fatalf("retry approved withdrawal: %v", err)
	}
	if updated.WithdrawalNonce != 1 {
		t.Fatalf("expected withdrawal nonce 1, got %d", updated.WithdrawalNonce)
	}
	if f.balance(holder.Address()) != 25 || f.balance(fund.Address) != 75 {
		t.Fatalf("expected a single withdrawal: holder=%d fund=%d", f.balance(holder.Address()), f.balance(fund.Address))
	}
}

// unconfirmedSubmit reports a timeout for the next submissions, optionally after applying them.
type unconfirmedSubmit struct {
	*ledger.Memory
	timeouts int
	apply    bool
}

func (a *unconfirmedSubmit) SubmitTransfer(ctx context.Context, p model.PreparedTransfer) error {
	if a.timeouts == 0 {
		return a.Memory.SubmitTransfer(ctx, p)
	}
	a.timeouts--
	if a.apply {
		if err := a.Memory.SubmitTransfer(ctx, p); err != nil {
			return err
		}
	}
	return errors.New("horizon: gateway timeout")
}

func TestUnconfirmedSubmissionIsResolvedOnRetry(t *testing.T) {
	tests := []struct {
		name    string
		applied bool
	}{
		{"transfer reached the ledger", true},
		{"transfer never reached the ledger", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := &unconfirmedSubmit{apply: tt.applied}
			f := newFixture(t, withAssets(func(l *ledger.Memory) AssetTransferer {
				assets.Memory = l
				return assets
			}))
			fund, _ := f.setup(100)
			in := DebitInput{CardFund: fund.Address, Asset: f.asset, Amount: 40}

			assets.timeouts = 1
			_, err := f.engine.Debit(f.ctx, f.settler.Address(), in)
			requireKind(t, err, ErrUnavailable)
			if got := f.fund(fund.Address).DebitNonce; got != 0 {
				t.Fatalf("unconfirmed transfer must not advance the nonce, got %d", got)
			}

			if _, err := f.engine.Debit(f.ctx, f.settler.Address(), in); err != nil {
				t.Fatalf("retry debit: %v", err)
			}
			if f.balance(fund.Address) != 60 || f.balance(f.holding) != 40 {
				t.Fatalf("expected a single debit: fund=%d holding=%d", f.balance(fund.Address), f.balance(f.holding))
			}
			if got := f.fund(fund.Address).DebitNonce; got != 1 {
				t.Fatalf("expected debit nonce 1, got %d", got)
			}
		})
	}
}

func TestRejectedSubmissionLeavesNoJournalEntry(t *testing.T) {
	f := newFixture(t)
	fund, _ := f.setup(100)

	_, err := f.engine.Debit(f.ctx, f.settler.Address(), DebitInput{CardFund: fund.Address, Asset: f.asset, Amount: 500})
	requireKind(t, err, ErrInsufficientFunds)
	if f.journaled(debitKey(fund.Address, 0)) {
		t.Fatal("expected the rejected transfer to be dropped from the journal")
	}

	if _, err := f.engine.Debit(f.ctx, f.settler.Address(), DebitInput{CardFund: fund.Address, Asset: f.asset, Amount: 50}); err != nil {
		t.Fatalf("debit at the same nonce with new terms: %v", err)
	}
}
