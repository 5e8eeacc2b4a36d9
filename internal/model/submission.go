package model

import "time"

// TransferStatus is what the ledger reports about a prepared transfer.
type TransferStatus int

const (
	// TransferPending means the outcome is not known yet. The transfer may still apply.
	TransferPending TransferStatus = iota
	TransferApplied
	// TransferFailed means the transfer did not apply and never will.
	TransferFailed
)

func (s TransferStatus) String() string {
	switch s {
	case TransferApplied:
		return "applied"
	case TransferFailed:
		return "failed"
	default:
		return "pending"
	}
}

// PreparedTransfer is a signed transfer that may or may not have reached the ledger.
type PreparedTransfer struct {
	Reference  string    `json:"reference"`
	Envelope   string    `json:"envelope,omitempty"`
	ValidUntil time.Time `json:"valid_until"`
}

// LedgerSubmission journals a nonce-gated transfer between its submission and the commit
// that advances the nonce. Key names the nonce slot the transfer consumes.
type LedgerSubmission struct {
	Key       string           `json:"key"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Asset     string           `json:"asset"`
	Amount    int64            `json:"amount"`
	Transfer  PreparedTransfer `json:"transfer"`
	Applied   bool             `json:"applied"`
	CreatedAt time.Time        `json:"created_at"`
}

// Matches reports whether the journaled transfer moves the same funds.
func (s *LedgerSubmission) Matches(from, to, asset string, amount int64) bool {
	return s.From == from && s.To == to && s.Asset == asset && s.Amount == amount
}
