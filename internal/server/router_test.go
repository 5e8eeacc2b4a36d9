package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/card-fund-service/internal/handler"
	"github.com/card-fund-service/internal/ledger"
	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/service"
	"github.com/card-fund-service/internal/stellar"
	"github.com/card-fund-service/internal/store"
)

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	ledger  *ledger.Memory
	engine  *service.Engine
	owner   *keypair.Full
	settler *keypair.Full
	asset   string
}

func randomKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	return kp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	holding := randomKeypair(t).Address()
	l := ledger.NewMemory(holding, 100_000_000)
	engine := service.NewEngine(service.Options{
		Store:           store.NewMemory(),
		Accounts:        l,
		Assets:          l,
		Signatures:      stellar.SignatureVerifier{},
		Funding:         l,
		HoldingAddress:  holding,
		Costs:           stellar.Costs(stellar.BaseReserveStroops),
		DefaultWaitTime: time.Hour,
	})

	ts := &testServer{
		t:       t,
		ledger:  l,
		engine:  engine,
		owner:   randomKeypair(t),
		settler: randomKeypair(t),
		asset:   "USDC:" + randomKeypair(t).Address(),
	}
	if _, err := engine.Deploy(context.Background(), service.DeployInput{
		Owner:   ts.owner.Address(),
		Settler: ts.settler.Address(),
	}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	ts.srv = httptest.NewServer(NewRouter(Options{
		Engine:            engine,
		StellarNetwork:    "testnet",
		NetworkPassphrase: "Test SDF Network ; September 2015",
		MaxClockSkew:      time.Minute,
		AuthLimiter:       middleware.NewAuthAttemptLimiter(100, time.Minute, time.Minute),
		RateLimiter:       middleware.NewRateLimiter(1000, time.Minute),
		Idempotency:       cache,
		IdempotencyTTL:    time.Hour,
		LocalLedger:       l,
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

// do sends a request signed by kp, or unsigned when kp is nil, and decodes a JSON body into out.
func (ts *testServer) do(kp *keypair.Full, method, path string, body interface{}, out interface{}, headers ...string) *http.Response {
	ts.t.Helper()

	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if kp != nil {
		stamp := strconv.FormatInt(time.Now().Unix(), 10)
		sig, err := kp.Sign(middleware.SigningMessage(method, req.URL.Path, stamp, raw))
		if err != nil {
			ts.t.Fatalf("sign request: %v", err)
		}
		req.Header.Set(middleware.CallerHeader, kp.Address())
		req.Header.Set(middleware.TimestampHeader, stamp)
		req.Header.Set(middleware.SignatureHeader, base64.StdEncoding.EncodeToString(sig))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			ts.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (ts *testServer) expect(resp *http.Response, status int) {
	ts.t.Helper()
	if resp.StatusCode != status {
		ts.t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, status, resp.StatusCode)
	}
}

// pay funds the holding account from payer for the quote at path and returns the reference.
func (ts *testServer) pay(payer *keypair.Full, quotePath string) string {
	ts.t.Helper()
	var quote handler.QuoteResponse
	ts.expect(ts.do(nil, http.MethodGet, quotePath, nil, &quote), http.StatusOK)

	var payment struct {
		Reference string `json:"reference"`
	}
	ts.expect(ts.do(payer, http.MethodPost, "/v1/dev/payments", map[string]string{"amount": quote.Total}, &payment), http.StatusCreated)
	return payment.Reference
}

func TestCardFundLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	settlement := randomKeypair(t).Address()
	if err := ts.ledger.OptIn(context.Background(), settlement, ts.asset); err != nil {
		t.Fatalf("opt in settlement address: %v", err)
	}

	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/allowlist", map[string]string{
		"asset":              ts.asset,
		"settlement_address": settlement,
		"funding_reference":  ts.pay(ts.owner, "/v1/quotes/allowlist"),
	}, nil), http.StatusCreated)

	var ch model.PartnerChannel
	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/channels", map[string]string{
		"name":              "acme",
		"funding_reference": ts.pay(ts.owner, "/v1/quotes/channel"),
	}, &ch), http.StatusCreated)

	holder := randomKeypair(t)
	var fund model.CardFund
	ts.expect(ts.do(holder, http.MethodPost, "/v1/card-funds", map[string]string{
		"channel":           ch.Address,
		"asset":             ts.asset,
		"funding_reference": ts.pay(holder, "/v1/quotes/card-fund?asset="+ts.asset),
	}, &fund), http.StatusCreated)
	if fund.Owner != holder.Address() || !fund.HasAsset(ts.asset) {
		t.Fatalf("unexpected card fund: %+v", fund)
	}

	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/dev/deposits", map[string]string{
		"account": fund.Address, "asset": ts.asset, "amount": "100",
	}, nil), http.StatusOK)

	var found model.CardFund
	ts.expect(ts.do(nil, http.MethodGet, "/v1/card-funds?channel="+ch.Address+"&owner="+holder.Address(), nil, &found), http.StatusOK)
	if found.Address != fund.Address {
		t.Fatalf("expected lookup to resolve %s, got %s", fund.Address, found.Address)
	}

	t.Run("debit advances the nonce and rejects replays", func(t *testing.T) {
		debit := map[string]interface{}{"asset": ts.asset, "amount": "25.5", "nonce": 0}
		var debited model.CardFund
		ts.expect(ts.do(ts.settler, http.MethodPost, "/v1/card-funds/"+fund.Address+"/debits", debit, &debited), http.StatusOK)
		if debited.DebitNonce != 1 {
			t.Fatalf("expected debit nonce 1, got %d", debited.DebitNonce)
		}
		ts.expect(ts.do(ts.settler, http.MethodPost, "/v1/card-funds/"+fund.Address+"/debits", debit, nil), http.StatusConflict)
	})

	t.Run("cardholder cannot debit", func(t *testing.T) {
		debit := map[string]interface{}{"asset": ts.asset, "amount": "1", "nonce": 1}
		ts.expect(ts.do(holder, http.MethodPost, "/v1/card-funds/"+fund.Address+"/debits", debit, nil), http.StatusForbidden)
	})

	t.Run("idempotent retry replays the first response", func(t *testing.T) {
		refund := map[string]interface{}{"asset": ts.asset, "amount": "0.5", "nonce": 1}
		var first, second model.CardFund
		ts.expect(ts.do(ts.settler, http.MethodPost, "/v1/card-funds/"+fund.Address+"/refunds", refund, &first,
			middleware.IdempotencyKeyHeader, "refund-1"), http.StatusOK)
		resp := ts.do(ts.settler, http.MethodPost, "/v1/card-funds/"+fund.Address+"/refunds", refund, &second,
			middleware.IdempotencyKeyHeader, "refund-1")
		ts.expect(resp, http.StatusOK)
		if resp.Header.Get(middleware.ReplayedHeader) != "true" {
			t.Fatal("expected the retry to be served from the idempotency store")
		}
		if second.DebitNonce != 2 {
			t.Fatalf("expected replayed nonce 2, got %d", second.DebitNonce)
		}
	})

	t.Run("balances reflect debit and refund", func(t *testing.T) {
		var balances struct {
			Balances []struct {
				Asset   string `json:"asset"`
				Balance string `json:"balance"`
			} `json:"balances"`
		}
		ts.expect(ts.do(nil, http.MethodGet, "/v1/card-funds/"+fund.Address+"/balances", nil, &balances), http.StatusOK)
		if len(balances.Balances) != 1 || balances.Balances[0].Balance != "75.0000000" {
			t.Fatalf("unexpected balances: %+v", balances.Balances)
		}
	})

	t.Run("pending withdrawal is time locked", func(t *testing.T) {
		fundPath := "/v1/card-funds/" + fund.Address + "/withdrawals"
		ts.expect(ts.do(holder, http.MethodPost, fundPath, map[string]string{"asset": ts.asset, "amount": "10"}, nil), http.StatusCreated)

		var pending struct {
			Amount       string `json:"amount"`
			Nonce        uint64 `json:"nonce"`
			ReleasableAt string `json:"releasable_at"`
		}
		ts.expect(ts.do(nil, http.MethodGet, "/v1/withdrawals/"+holder.Address(), nil, &pending), http.StatusOK)
		if pending.Amount != "10.0000000" || pending.Nonce != 0 || pending.ReleasableAt == "" {
			t.Fatalf("unexpected pending withdrawal: %+v", pending)
		}

		ts.expect(ts.do(holder, http.MethodPost, fundPath+"/execute", map[string]string{"amount": "10"}, nil), http.StatusTooEarly)
		ts.expect(ts.do(holder, http.MethodDelete, fundPath, nil, nil), http.StatusNoContent)
		ts.expect(ts.do(nil, http.MethodGet, "/v1/withdrawals/"+holder.Address(), nil, nil), http.StatusNotFound)
	})

	t.Run("events are listed per card fund", func(t *testing.T) {
		var page struct {
			Events []model.Event `json:"events"`
			Total  int           `json:"total"`
		}
		ts.expect(ts.do(nil, http.MethodGet, "/v1/events?card_fund="+fund.Address+"&kind=Debit", nil, &page), http.StatusOK)
		if page.Total != 1 || len(page.Events) != 1 || page.Events[0].Kind != model.EventDebit {
			t.Fatalf("unexpected debit events: %+v", page)
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	var sys model.System
	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/admin/pause", nil, &sys), http.StatusOK)
	if !sys.Paused {
		t.Fatal("expected the system to be paused")
	}

	ts.expect(ts.do(ts.settler, http.MethodPost, "/v1/admin/unpause", nil, nil), http.StatusForbidden)
	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/admin/unpause", nil, nil), http.StatusOK)

	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/admin/withdrawal-wait-time", map[string]string{"wait_time": "nonsense"}, nil), http.StatusBadRequest)

	var system struct {
		WithdrawalWaitTime string `json:"withdrawal_wait_time"`
	}
	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/admin/withdrawal-wait-time", map[string]string{"wait_time": "72h"}, nil), http.StatusOK)
	ts.expect(ts.do(nil, http.MethodGet, "/v1/system", nil, &system), http.StatusOK)
	if system.WithdrawalWaitTime != "72h0m0s" {
		t.Fatalf("expected wait time 72h0m0s, got %s", system.WithdrawalWaitTime)
	}

	pauser := randomKeypair(t)
	ts.expect(ts.do(ts.owner, http.MethodPost, "/v1/admin/pauser", map[string]string{"address": pauser.Address()}, &sys), http.StatusOK)
	if sys.Pauser != pauser.Address() {
		t.Fatalf("expected pauser %s, got %s", pauser.Address(), sys.Pauser)
	}
}

func TestSignedRoutesRequireAuthentication(t *testing.T) {
	ts := newTestServer(t)

	ts.expect(ts.do(nil, http.MethodPost, "/v1/channels", map[string]string{"name": "acme"}, nil), http.StatusUnauthorized)
	ts.expect(ts.do(nil, http.MethodPost, "/v1/admin/pause", nil, nil), http.StatusUnauthorized)
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	var health handler.HealthResponse
	ts.expect(ts.do(nil, http.MethodGet, "/health", nil, &health), http.StatusOK)
	if health.Status != "healthy" || health.HoldingAccount != ts.engine.HoldingAddress() {
		t.Fatalf("unexpected health response: %+v", health)
	}
	if health.HoldingBalance != "10.0000000" {
		t.Fatalf("expected holding balance 10.0000000, got %s", health.HoldingBalance)
	}

	var info handler.InfoResponse
	ts.expect(ts.do(nil, http.MethodGet, "/info", nil, &info), http.StatusOK)
	if info.AccountReserve != "1.5000000" || info.OptInReserve != "0.5000000" {
		t.Fatalf("unexpected reserves in info: %+v", info)
	}

	ts.expect(ts.do(nil, http.MethodGet, "/metrics", nil, nil), http.StatusOK)
	ts.expect(ts.do(nil, http.MethodGet, "/v1/nothing-here", nil, nil), http.StatusNotFound)
	ts.expect(ts.do(nil, http.MethodGet, "/v1/events?per_page=1000", nil, nil), http.StatusBadRequest)
}
