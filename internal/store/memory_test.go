package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/card-fund-service/internal/model"
)

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	boom := errors.New("boom")
	err := m.Update(ctx, func(tx Tx) error {
		if err := tx.PutSystem(ctx, &model.System{Owner: "owner"}); err != nil {
			return err
		}
		if err := tx.InsertFundIndex(ctx, "k", "addr"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = m.View(ctx, func(tx Tx) error {
		if _, err := tx.System(ctx); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected system to be absent after rollback, got %v", err)
		}
		if _, err := tx.FundIndex(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected index entry to be absent after rollback, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestMemoryReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Update(ctx, func(tx Tx) error {
		if err := tx.PutChannel(ctx, &model.PartnerChannel{Address: "CH", Name: "acme"}); err != nil {
			return err
		}
		return tx.PutCardFund(ctx, &model.CardFund{Address: "F", PartnerChannel: "CH", Owner: "o", Assets: []string{"A"}})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = m.View(ctx, func(tx Tx) error {
		f, err := tx.CardFund(ctx, "F")
		if err != nil {
			t.Fatalf("get fund: %v", err)
		}
		f.Assets[0] = "mutated"
		f.DebitNonce = 99
		return nil
	})

	_ = m.View(ctx, func(tx Tx) error {
		f, _ := tx.CardFund(ctx, "F")
		if f.Assets[0] != "A" || f.DebitNonce != 0 {
			t.Fatalf("stored fund was mutated through a returned copy: %+v", f)
		}
		return nil
	})
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.View(ctx, func(tx Tx) error {
		return tx.PutAllowlistEntry(ctx, &model.AllowlistEntry{Asset: "A", SettlementAddress: "S"})
	})
	if err == nil {
		t.Fatal("expected write inside View to fail")
	}
}

func TestMemoryUniqueKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("channel names are unique", func(t *testing.T) {
		err := m.Update(ctx, func(tx Tx) error {
			if err := tx.PutChannel(ctx, &model.PartnerChannel{Address: "CH1", Name: "acme"}); err != nil {
				return err
			}
			return tx.PutChannel(ctx, &model.PartnerChannel{Address: "CH2", Name: "acme"})
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("funding proofs are consumed once", func(t *testing.T) {
		err := m.Update(ctx, func(tx Tx) error {
			if err := tx.ConsumeFundingProof(ctx, "ref-1"); err != nil {
				return err
			}
			return tx.ConsumeFundingProof(ctx, "ref-1")
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("one pending withdrawal per principal", func(t *testing.T) {
		err := m.Update(ctx, func(tx Tx) error {
			p := &model.PendingWithdrawal{Principal: "P", CardFund: "F", Amount: 1}
			if err := tx.InsertPendingWithdrawal(ctx, p); err != nil {
				return err
			}
			return tx.InsertPendingWithdrawal(ctx, p)
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestMemoryListEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Update(ctx, func(tx Tx) error {
		for i := 0; i < 5; i++ {
			fund := "F1"
			if i%2 == 1 {
				fund = "F2"
			}
			e := &model.Event{
				ID:         uuid.New(),
				Kind:       model.EventDebit,
				CardFund:   fund,
				Attributes: map[string]string{"i": string(rune('0' + i))},
				CreatedAt:  time.Unix(int64(i), 0),
			}
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed events: %v", err)
	}

	fund := "F1"
	events, total, err := m.ListEvents(ctx, EventFilter{CardFund: &fund, Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if total != 3 || len(events) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(events))
	}
	if events[0].Attributes["i"] != "4" {
		t.Fatalf("expected newest event first, got %q", events[0].Attributes["i"])
	}

	events, _, _ = m.ListEvents(ctx, EventFilter{CardFund: &fund, Page: 3, PerPage: 2})
	if len(events) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(events))
	}
}
