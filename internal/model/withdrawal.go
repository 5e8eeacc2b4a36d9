package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// WithdrawalType tags how a withdrawal was authorized.
type WithdrawalType string

const (
	WithdrawalPermissionless WithdrawalType = "permissionless"
	WithdrawalApproved       WithdrawalType = "approved"
)

// PendingWithdrawal is the single outstanding time-locked request a principal may hold.
// ReleasableAt is fixed when the request is made and does not follow later changes to
// the withdrawal wait time.
type PendingWithdrawal struct {
	Principal    string    `json:"principal"`
	CardFund     string    `json:"card_fund"`
	Recipient    string    `json:"recipient"`
	Asset        string    `json:"asset"`
	Amount       int64     `json:"amount"`
	Nonce        uint64    `json:"nonce"`
	CreatedAt    time.Time `json:"created_at"`
	ReleasableAt time.Time `json:"releasable_at"`
}

// ApprovedWithdrawal carries the terms an operator signs to release funds immediately.
// It is never persisted. ExpiresAt is signed at second precision.
type ApprovedWithdrawal struct {
	CardFund        string
	Recipient       string
	Asset           string
	Amount          int64
	ExpiresAt       time.Time
	Nonce           uint64
	DomainSeparator [32]byte
}

const approvedWithdrawalTag = "cardfund.approved-withdrawal.v1"

// Payload returns the canonical encoding of the withdrawal terms. Strings are length
// prefixed and integers are fixed-width big-endian, so distinct terms never collide.
func (a ApprovedWithdrawal) Payload() []byte {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, approvedWithdrawalTag)
	buf.Write(a.DomainSeparator[:])
	writeLenPrefixed(&buf, a.CardFund)
	writeLenPrefixed(&buf, a.Recipient)
	writeLenPrefixed(&buf, a.Asset)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(a.Amount))
	buf.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(a.ExpiresAt.Unix()))
	buf.Write(n[:])
	binary.BigEndian.PutUint64(n[:], a.Nonce)
	buf.Write(n[:])
	return buf.Bytes()
}

// Digest is the SHA-256 of Payload. Approval signatures are made over this digest.
func (a ApprovedWithdrawal) Digest() [32]byte {
	return sha256.Sum256(a.Payload())
}
