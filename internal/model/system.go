package model

import "time"

// NativeAsset identifies the ledger's native currency, used for reserves and storage costs.
const NativeAsset = "native"

// System is the single per-deployment aggregate holding roles, global counters and settings.
type System struct {
	Owner              string        `json:"owner"`
	Settler            string        `json:"settler"`
	Pauser             string        `json:"pauser"`
	Paused             bool          `json:"paused"`
	ApprovalKey        string        `json:"approval_key,omitempty"`
	WithdrawalWaitTime time.Duration `json:"withdrawal_wait_time"`
	SettlementNonce    uint64        `json:"settlement_nonce"`
	ActiveCardFunds    uint64        `json:"active_card_funds"`
	ActiveChannels     uint64        `json:"active_channels"`
	Version            int           `json:"version"`
	Destroyed          bool          `json:"destroyed"`
	DeployedAt         time.Time     `json:"deployed_at"`
}

// ApprovalPublicKey returns the key approved withdrawals must be signed with.
// Without an explicit approval key the settler's address is used.
func (s *System) ApprovalPublicKey() string {
	if s.ApprovalKey != "" {
		return s.ApprovalKey
	}
	return s.Settler
}
