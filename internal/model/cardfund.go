package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// CardFund is the custodial account holding one cardholder's balance within a partner channel.
type CardFund struct {
	Address         string    `json:"address"`
	PartnerChannel  string    `json:"partner_channel"`
	Owner           string    `json:"owner"`
	DebitNonce      uint64    `json:"debit_nonce"`
	WithdrawalNonce uint64    `json:"withdrawal_nonce"`
	Assets          []string  `json:"assets"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasAsset reports whether the fund account is opted into asset.
func (f *CardFund) HasAsset(asset string) bool {
	return containsAsset(f.Assets, asset)
}

// AddAsset records asset as enabled on the fund.
func (f *CardFund) AddAsset(asset string) {
	if !f.HasAsset(asset) {
		f.Assets = append(f.Assets, asset)
	}
}

// RemoveAsset drops asset from the fund's enabled set.
func (f *CardFund) RemoveAsset(asset string) {
	f.Assets = removeAsset(f.Assets, asset)
}

// FundKey returns the uniqueness-index key for a (channel, owner) pair: the hex SHA-256
// of both values, each prefixed with its big-endian uint16 length.
func FundKey(channel, owner string) string {
	h := sha256.New()
	writeLenPrefixed(h, channel)
	writeLenPrefixed(h, owner)
	return hex.EncodeToString(h.Sum(nil))
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeLenPrefixed(w byteWriter, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	w.Write(l[:])
	w.Write([]byte(s))
}
