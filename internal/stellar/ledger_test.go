package stellar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/network"

	"github.com/card-fund-service/internal/model"
)

const notFoundProblem = `{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404}`

func newTestLedger(t *testing.T, handler http.Handler) *Ledger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := &horizonclient.Client{HorizonURL: srv.URL, HTTP: srv.Client()}
	client.SetHorizonTimeout(5 * time.Second)

	l, err := NewLedger(client, randomKeypair(t).Seed(), network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func TestNewLedgerRejectsInvalidKey(t *testing.T) {
	if _, err := NewLedger(&horizonclient.Client{}, "not-a-secret", network.TestNetworkPassphrase); err == nil {
		t.Fatal("expected invalid signing key error")
	}
}

func TestResultCodeError(t *testing.T) {
	tests := []struct {
		name    string
		txCode  string
		opCodes []string
		want    error
	}{
		{"underfunded payment", "tx_failed", []string{"op_underfunded"}, model.ErrInsufficientBalance},
		{"missing trustline", "tx_failed", []string{"op_success", "op_no_trust"}, model.ErrNotOptedIn},
		{"merge with trustlines", "tx_failed", []string{"op_has_sub_entries"}, model.ErrAccountNotEmpty},
		{"missing destination", "tx_failed", []string{"op_no_destination"}, model.ErrAccountNotFound},
		{"fee underfunded", "tx_insufficient_balance", nil, model.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resultCodeError(tt.txCode, tt.opCodes)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := resultCodeError("tx_bad_seq", nil); err != nil {
		t.Fatalf("expected unmapped code to return nil, got %v", err)
	}
}

func TestBalanceOf(t *testing.T) {
	account := randomAddress(t)
	issuer := randomAddress(t)

	l := newTestLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/accounts/"+account {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, notFoundProblem)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"account_id":%q,"sequence":"42","balances":[
			{"balance":"12.5000000","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":%q},
			{"balance":"3.0000000","asset_type":"native"}]}`, account, account, issuer)
	}))
	ctx := context.Background()

	t.Run("credit balance", func(t *testing.T) {
		got, err := l.BalanceOf(ctx, account, "USDC:"+issuer)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if got != 125_000_000 {
			t.Fatalf("expected 125000000 stroops, got %d", got)
		}
	})

	t.Run("native balance", func(t *testing.T) {
		got, err := l.BalanceOf(ctx, account, model.NativeAsset)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if got != 30_000_000 {
			t.Fatalf("expected 30000000 stroops, got %d", got)
		}
	})

	t.Run("asset without trustline", func(t *testing.T) {
		_, err := l.BalanceOf(ctx, account, "EURC:"+issuer)
		if !errors.Is(err, model.ErrNotOptedIn) {
			t.Fatalf("expected ErrNotOptedIn, got %v", err)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := l.BalanceOf(ctx, randomAddress(t), model.NativeAsset)
		if !errors.Is(err, model.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestVerifyFunding(t *testing.T) {
	const hash = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
	const splitHash = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	payer := randomAddress(t)
	other := randomAddress(t)

	var l *Ledger
	l = newTestLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/transactions/"+hash, r.URL.Path == "/transactions/"+splitHash:
			id := strings.TrimPrefix(r.URL.Path, "/transactions/")
			fmt.Fprintf(w, `{"id":%q,"hash":%q,"successful":true,"fee_charged":"100","max_fee":"100"}`, id, id)
		case r.URL.Path == "/transactions/"+splitHash+"/payments":
			fmt.Fprintf(w, `{"_embedded":{"records":[
				{"id":"1","paging_token":"1","transaction_successful":true,"source_account":%[1]q,"type":"payment","type_i":1,
				 "created_at":"2026-01-01T00:00:00Z","transaction_hash":%[4]q,"asset_type":"native","from":%[1]q,"to":%[2]q,"amount":"1.0000000"},
				{"id":"2","paging_token":"2","transaction_successful":true,"source_account":%[3]q,"type":"payment","type_i":1,
				 "created_at":"2026-01-01T00:00:00Z","transaction_hash":%[4]q,"asset_type":"native","from":%[3]q,"to":%[2]q,"amount":"1.0000000"}
			]}}`, payer, l.HoldingAddress(), other, splitHash)
		case r.URL.Path == "/transactions/"+hash+"/payments":
			fmt.Fprintf(w, `{"_embedded":{"records":[
				{"id":"1","paging_token":"1","transaction_successful":true,"source_account":%[1]q,"type":"payment","type_i":1,
				 "created_at":"2026-01-01T00:00:00Z","transaction_hash":%[4]q,"asset_type":"native","from":%[1]q,"to":%[2]q,"amount":"1.5000000"},
				{"id":"2","paging_token":"2","transaction_successful":true,"source_account":%[1]q,"type":"payment","type_i":1,
				 "created_at":"2026-01-01T00:00:00Z","transaction_hash":%[4]q,"asset_type":"native","from":%[1]q,"to":%[3]q,"amount":"9.0000000"},
				{"id":"3","paging_token":"3","transaction_successful":true,"source_account":%[1]q,"type":"payment","type_i":1,
				 "created_at":"2026-01-01T00:00:00Z","transaction_hash":%[4]q,"asset_type":"native","from":%[1]q,"to":%[2]q,"amount":"0.0000200"}
			]}}`, payer, l.HoldingAddress(), other, hash)
		case strings.HasPrefix(r.URL.Path, "/transactions/"):
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, notFoundProblem)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	ctx := context.Background()

	t.Run("sums native payments to the payee", func(t *testing.T) {
		receipt, err := l.VerifyFunding(ctx, model.FundingProof{Reference: hash}, l.HoldingAddress())
		if err != nil {
			t.Fatalf("verify funding: %v", err)
		}
		if receipt.Payer != payer {
			t.Fatalf("expected payer %s, got %s", payer, receipt.Payer)
		}
		if receipt.Amount != 15_000_200 {
			t.Fatalf("expected 15000200 stroops, got %d", receipt.Amount)
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := l.VerifyFunding(ctx, model.FundingProof{Reference: strings.Repeat("0", 64)}, l.HoldingAddress())
		if !errors.Is(err, model.ErrFundingNotFound) {
			t.Fatalf("expected ErrFundingNotFound, got %v", err)
		}
	})

	t.Run("transaction without payments to the payee", func(t *testing.T) {
		_, err := l.VerifyFunding(ctx, model.FundingProof{Reference: hash}, randomAddress(t))
		if !errors.Is(err, model.ErrFundingNotFound) {
			t.Fatalf("expected ErrFundingNotFound, got %v", err)
		}
	})

	t.Run("payments from two accounts", func(t *testing.T) {
		_, err := l.VerifyFunding(ctx, model.FundingProof{Reference: splitHash}, l.HoldingAddress())
		if !errors.Is(err, model.ErrFundingInvalid) {
			t.Fatalf("expected ErrFundingInvalid, got %v", err)
		}
	})
}

func TestTransferStatus(t *testing.T) {
	const applied = "1111111111111111111111111111111111111111111111111111111111111111"
	const failed = "2222222222222222222222222222222222222222222222222222222222222222"

	l := newTestLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/transactions/" + applied:
			fmt.Fprintf(w, `{"id":%q,"hash":%q,"successful":true,"fee_charged":"100","max_fee":"100"}`, applied, applied)
		case "/transactions/" + failed:
			fmt.Fprintf(w, `{"id":%q,"hash":%q,"successful":false,"fee_charged":"100","max_fee":"100"}`, failed, failed)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, notFoundProblem)
		}
	}))
	ctx := context.Background()
	unknown := strings.Repeat("3", 64)

	tests := []struct {
		name     string
		transfer model.PreparedTransfer
		want     model.TransferStatus
	}{
		{"successful transaction", model.PreparedTransfer{Reference: applied}, model.TransferApplied},
		{"failed transaction", model.PreparedTransfer{Reference: failed}, model.TransferFailed},
		{"unknown within time bounds", model.PreparedTransfer{Reference: unknown, ValidUntil: time.Now().Add(time.Minute)}, model.TransferPending},
		{"unknown after time bounds", model.PreparedTransfer{Reference: unknown, ValidUntil: time.Now().Add(-time.Minute)}, model.TransferFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.TransferStatus(ctx, tt.transfer)
			if err != nil {
				t.Fatalf("transfer status: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
