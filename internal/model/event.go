package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a state transition recorded in the event log.
type EventKind string

const (
	EventDeployed                  EventKind = "Deployed"
	EventUpgraded                  EventKind = "Upgraded"
	EventDestroyed                 EventKind = "Destroyed"
	EventOwnershipTransferred      EventKind = "OwnershipTransferred"
	EventSettlerChanged            EventKind = "SettlerChanged"
	EventPauserChanged             EventKind = "PauserChanged"
	EventPaused                    EventKind = "Paused"
	EventUnpaused                  EventKind = "Unpaused"
	EventApprovalKeyChanged        EventKind = "ApprovalKeyChanged"
	EventWithdrawalWaitTimeChanged EventKind = "WithdrawalWaitTimeChanged"
	EventChannelCreated            EventKind = "ChannelCreated"
	EventChannelClosed             EventKind = "ChannelClosed"
	EventChannelAssetEnabled       EventKind = "ChannelAssetEnabled"
	EventChannelAssetDisabled      EventKind = "ChannelAssetDisabled"
	EventCardFundCreated           EventKind = "CardFundCreated"
	EventCardFundClosed            EventKind = "CardFundClosed"
	EventCardFundRecovered         EventKind = "CardFundRecovered"
	EventCardFundAssetEnabled      EventKind = "CardFundAssetEnabled"
	EventCardFundAssetDisabled     EventKind = "CardFundAssetDisabled"
	EventDebit                     EventKind = "Debit"
	EventRefund                    EventKind = "Refund"
	EventWithdrawalRequest         EventKind = "WithdrawalRequest"
	EventWithdrawalCancelled       EventKind = "WithdrawalRequestCancelled"
	EventWithdrawal                EventKind = "Withdrawal"
	EventAllowlistAdded            EventKind = "AssetAllowlistAdded"
	EventAllowlistRemoved          EventKind = "AssetAllowlistRemoved"
	EventSettlementAddressChanged  EventKind = "SettlementAddressChanged"
	EventSettlement                EventKind = "Settlement"
)

// Event is an append-only record of a committed state transition.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Kind       EventKind         `json:"kind"`
	CardFund   string            `json:"card_fund,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}
