package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/card-fund-service/internal/model"
)

// advisoryLockKey serializes every state-changing unit of work across service replicas.
const advisoryLockKey int64 = 0x63617264_66756e64

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Update(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
}

func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	opts := pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}
	return pgx.BeginTxFunc(ctx, p.pool, opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.CardFund != nil {
		where += fmt.Sprintf(" AND card_fund = $%d", argIdx)
		args = append(args, *filter.CardFund)
		argIdx++
	}
	if filter.Kind != nil {
		where += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(*filter.Kind))
		argIdx++
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	page, perPage := filter.normalized()
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`
		SELECT id, kind, card_fund, attributes, created_at
		FROM events %s
		ORDER BY seq DESC
		LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []*model.Event{}
	for rows.Next() {
		var e model.Event
		var kind string
		var cardFund *string
		var attrs []byte
		if err := rows.Scan(&e.ID, &kind, &cardFund, &attrs, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		if cardFund != nil {
			e.CardFund = *cardFund
		}
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, 0, fmt.Errorf("unmarshal event attributes: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}
	return events, total, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) System(ctx context.Context) (*model.System, error) {
	var sys model.System
	var waitSeconds int64
	var settlementNonce, activeFunds, activeChannels int64
	err := t.tx.QueryRow(ctx, `
		SELECT owner, settler, pauser, paused, approval_key, withdrawal_wait_seconds,
		       settlement_nonce, active_card_funds, active_channels, version, destroyed, deployed_at
		FROM system_state WHERE id = 1
	`).Scan(
		&sys.Owner, &sys.Settler, &sys.Pauser, &sys.Paused, &sys.ApprovalKey, &waitSeconds,
		&settlementNonce, &activeFunds, &activeChannels, &sys.Version, &sys.Destroyed, &sys.DeployedAt,
	)
	if err != nil {
		return nil, notFound(err, "system")
	}
	sys.WithdrawalWaitTime = time.Duration(waitSeconds) * time.Second
	sys.SettlementNonce = uint64(settlementNonce)
	sys.ActiveCardFunds = uint64(activeFunds)
	sys.ActiveChannels = uint64(activeChannels)
	return &sys, nil
}

func (t *pgTx) PutSystem(ctx context.Context, sys *model.System) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO system_state (
			id, owner, settler, pauser, paused, approval_key, withdrawal_wait_seconds,
			settlement_nonce, active_card_funds, active_channels, version, destroyed, deployed_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			settler = EXCLUDED.settler,
			pauser = EXCLUDED.pauser,
			paused = EXCLUDED.paused,
			approval_key = EXCLUDED.approval_key,
			withdrawal_wait_seconds = EXCLUDED.withdrawal_wait_seconds,
			settlement_nonce = EXCLUDED.settlement_nonce,
			active_card_funds = EXCLUDED.active_card_funds,
			active_channels = EXCLUDED.active_channels,
			version = EXCLUDED.version,
			destroyed = EXCLUDED.destroyed
	`,
		sys.Owner, sys.Settler, sys.Pauser, sys.Paused, sys.ApprovalKey, int64(sys.WithdrawalWaitTime/time.Second),
		int64(sys.SettlementNonce), int64(sys.ActiveCardFunds), int64(sys.ActiveChannels),
		sys.Version, sys.Destroyed, sys.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert system_state: %w", err)
	}
	return nil
}

const channelColumns = `address, name, assets, created_at`

func (t *pgTx) scanChannel(ctx context.Context, query string, arg string) (*model.PartnerChannel, error) {
	var ch model.PartnerChannel
	err := t.tx.QueryRow(ctx, query, arg).Scan(&ch.Address, &ch.Name, &ch.Assets, &ch.CreatedAt)
	if err != nil {
		return nil, notFound(err, "partner channel")
	}
	return &ch, nil
}

func (t *pgTx) Channel(ctx context.Context, address string) (*model.PartnerChannel, error) {
	return t.scanChannel(ctx, `SELECT `+channelColumns+` FROM partner_channels WHERE address = $1`, address)
}

func (t *pgTx) ChannelByName(ctx context.Context, name string) (*model.PartnerChannel, error) {
	return t.scanChannel(ctx, `SELECT `+channelColumns+` FROM partner_channels WHERE name = $1`, name)
}

func (t *pgTx) PutChannel(ctx context.Context, ch *model.PartnerChannel) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO partner_channels (address, name, assets, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET name = EXCLUDED.name, assets = EXCLUDED.assets
	`, ch.Address, ch.Name, nonNil(ch.Assets), ch.CreatedAt)
	if err != nil {
		return duplicate(err, "upsert partner_channel")
	}
	return nil
}

func (t *pgTx) DeleteChannel(ctx context.Context, address string) error {
	return t.deleteOne(ctx, `DELETE FROM partner_channels WHERE address = $1`, address)
}

func (t *pgTx) CardFund(ctx context.Context, address string) (*model.CardFund, error) {
	var f model.CardFund
	var debitNonce, withdrawalNonce int64
	err := t.tx.QueryRow(ctx, `
		SELECT address, partner_channel, owner, debit_nonce, withdrawal_nonce, assets, created_at
		FROM card_funds WHERE address = $1
	`, address).Scan(&f.Address, &f.PartnerChannel, &f.Owner, &debitNonce, &withdrawalNonce, &f.Assets, &f.CreatedAt)
	if err != nil {
		return nil, notFound(err, "card fund")
	}
	f.DebitNonce = uint64(debitNonce)
	f.WithdrawalNonce = uint64(withdrawalNonce)
	return &f, nil
}

func (t *pgTx) PutCardFund(ctx context.Context, fund *model.CardFund) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO card_funds (address, partner_channel, owner, debit_nonce, withdrawal_nonce, assets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			debit_nonce = EXCLUDED.debit_nonce,
			withdrawal_nonce = EXCLUDED.withdrawal_nonce,
			assets = EXCLUDED.assets
	`, fund.Address, fund.PartnerChannel, fund.Owner, int64(fund.DebitNonce), int64(fund.WithdrawalNonce),
		nonNil(fund.Assets), fund.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert card_fund: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteCardFund(ctx context.Context, address string) error {
	return t.deleteOne(ctx, `DELETE FROM card_funds WHERE address = $1`, address)
}

func (t *pgTx) FundIndex(ctx context.Context, key string) (string, error) {
	var address string
	err := t.tx.QueryRow(ctx, `SELECT address FROM card_fund_index WHERE fund_key = $1`, key).Scan(&address)
	if err != nil {
		return "", notFound(err, "card fund index")
	}
	return address, nil
}

func (t *pgTx) InsertFundIndex(ctx context.Context, key, address string) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO card_fund_index (fund_key, address) VALUES ($1, $2)`, key, address)
	if err != nil {
		return duplicate(err, "insert card_fund_index")
	}
	return nil
}

func (t *pgTx) DeleteFundIndex(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM card_fund_index WHERE fund_key = $1`, key); err != nil {
		return fmt.Errorf("delete card_fund_index: %w", err)
	}
	return nil
}

func (t *pgTx) AllowlistEntry(ctx context.Context, asset string) (*model.AllowlistEntry, error) {
	var e model.AllowlistEntry
	err := t.tx.QueryRow(ctx, `SELECT asset, settlement_address FROM asset_allowlist WHERE asset = $1`, asset).
		Scan(&e.Asset, &e.SettlementAddress)
	if err != nil {
		return nil, notFound(err, "allowlist entry")
	}
	return &e, nil
}

func (t *pgTx) PutAllowlistEntry(ctx context.Context, entry *model.AllowlistEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO asset_allowlist (asset, settlement_address) VALUES ($1, $2)
		ON CONFLICT (asset) DO UPDATE SET settlement_address = EXCLUDED.settlement_address
	`, entry.Asset, entry.SettlementAddress)
	if err != nil {
		return fmt.Errorf("upsert asset_allowlist: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteAllowlistEntry(ctx context.Context, asset string) error {
	return t.deleteOne(ctx, `DELETE FROM asset_allowlist WHERE asset = $1`, asset)
}

func (t *pgTx) PendingWithdrawal(ctx context.Context, principal string) (*model.PendingWithdrawal, error) {
	var p model.PendingWithdrawal
	var nonce int64
	err := t.tx.QueryRow(ctx, `
		SELECT principal, card_fund, recipient, asset, amount, nonce, created_at, releasable_at
		FROM pending_withdrawals WHERE principal = $1
	`, principal).Scan(&p.Principal, &p.CardFund, &p.Recipient, &p.Asset, &p.Amount, &nonce, &p.CreatedAt, &p.ReleasableAt)
	if err != nil {
		return nil, notFound(err, "pending withdrawal")
	}
	p.Nonce = uint64(nonce)
	return &p, nil
}

func (t *pgTx) InsertPendingWithdrawal(ctx context.Context, p *model.PendingWithdrawal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pending_withdrawals (principal, card_fund, recipient, asset, amount, nonce, created_at, releasable_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.Principal, p.CardFund, p.Recipient, p.Asset, p.Amount, int64(p.Nonce), p.CreatedAt, p.ReleasableAt)
	if err != nil {
		return duplicate(err, "insert pending_withdrawal")
	}
	return nil
}

func (t *pgTx) DeletePendingWithdrawal(ctx context.Context, principal string) error {
	return t.deleteOne(ctx, `DELETE FROM pending_withdrawals WHERE principal = $1`, principal)
}

func (t *pgTx) LedgerSubmission(ctx context.Context, key string) (*model.LedgerSubmission, error) {
	var sub model.LedgerSubmission
	err := t.tx.QueryRow(ctx, `
		SELECT key, from_account, to_account, asset, amount, reference, envelope, valid_until, applied, created_at
		FROM ledger_submissions WHERE key = $1
	`, key).Scan(&sub.Key, &sub.From, &sub.To, &sub.Asset, &sub.Amount,
		&sub.Transfer.Reference, &sub.Transfer.Envelope, &sub.Transfer.ValidUntil, &sub.Applied, &sub.CreatedAt)
	if err != nil {
		return nil, notFound(err, "ledger submission")
	}
	return &sub, nil
}

func (t *pgTx) PutLedgerSubmission(ctx context.Context, sub *model.LedgerSubmission) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_submissions (key, from_account, to_account, asset, amount, reference, envelope, valid_until, applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (key) DO UPDATE SET
			from_account = EXCLUDED.from_account,
			to_account   = EXCLUDED.to_account,
			asset        = EXCLUDED.asset,
			amount       = EXCLUDED.amount,
			reference    = EXCLUDED.reference,
			envelope     = EXCLUDED.envelope,
			valid_until  = EXCLUDED.valid_until,
			applied      = EXCLUDED.applied
	`, sub.Key, sub.From, sub.To, sub.Asset, sub.Amount,
		sub.Transfer.Reference, sub.Transfer.Envelope, sub.Transfer.ValidUntil, sub.Applied, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert ledger_submission: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteLedgerSubmission(ctx context.Context, key string) error {
	return t.deleteOne(ctx, `DELETE FROM ledger_submissions WHERE key = $1`, key)
}

func (t *pgTx) ConsumeFundingProof(ctx context.Context, reference string) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO funding_proofs (reference) VALUES ($1)`, reference); err != nil {
		return duplicate(err, "insert funding_proof")
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *model.Event) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO events (id, kind, card_fund, attributes, created_at) VALUES ($1, $2, $3, $4, $5)
	`, e.ID, string(e.Kind), nullString(e.CardFund), attrs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *pgTx) deleteOne(ctx context.Context, query, key string) error {
	tag, err := t.tx.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func duplicate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
