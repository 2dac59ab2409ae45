// Package store contains the GORM-backed SQLite models that make the payment
// pipeline auditable: an append-only case log written around every state
// transition, the set of submitted-but-unresolved transactions the reconciler
// revisits, and the listener's block cursor.
package store

import (
	"gorm.io/gorm"
)

// CaseEvent is one append-only entry in the case log. A row is written for
// every state transition of a payment case, before the corresponding
// notification goes out, so an operator can always tell which leg of a payment
// completed.
type CaseEvent struct {
	gorm.Model
	CaseID      string `gorm:"index;not null"` // uuid of the payment case
	Payer       string // paying client's address
	State       string `gorm:"index;not null"` // state entered by this transition
	AmountUSDC  string // human-scale amount relevant to the transition
	TxHash      string // transaction handle, when one exists
	BlockNumber uint64 // block of the triggering incoming transfer
	Detail      string `gorm:"type:text"` // failure diagnostics, route info, etc.
}

// PendingTransaction tracks a submitted transaction whose final status is
// unknown (still confirming, or confirmation timed out). The reconciler
// re-queries these out of band; nothing ever resubmits them.
type PendingTransaction struct {
	gorm.Model
	TxHash   string `gorm:"uniqueIndex;not null"`
	CaseID   string `gorm:"index;not null"`
	Leg      string // "broker_transfer" or "swap"
	Status   string `gorm:"index"` // "pending", "timed_out", "confirmed", "reverted"
	GasLimit uint64
}

const (
	TxStatusPending   = "pending"
	TxStatusTimedOut  = "timed_out"
	TxStatusConfirmed = "confirmed"
	TxStatusReverted  = "reverted"
)

// ListenerCursor records the last block the transfer watcher processed, so a
// restart resumes instead of replaying or skipping history. One row per
// watched asset.
type ListenerCursor struct {
	gorm.Model
	Asset     string `gorm:"uniqueIndex;not null"` // settlement asset contract address
	LastBlock uint64
}
