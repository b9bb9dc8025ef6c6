// Package domain defines the core entities of the payout console.
// These models are independent of the remote payout API wire format and
// represent the canonical data structures used throughout the BFF.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Pending payouts (snapshot)
// ============================================================

// Seller is the payee of a pending payout.
type Seller struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Transaction is a single settled item owed to a seller.
type Transaction struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
}

// PendingPayout aggregates the outstanding transactions of one seller.
// It is replaced wholesale on every snapshot fetch.
type PendingPayout struct {
	Seller           Seller          `json:"seller"`
	Transactions     []Transaction   `json:"transactions"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TransactionCount int             `json:"transaction_count"`
	OldestAt         time.Time       `json:"oldest_transaction_date"`
}

// PaymentStats holds the summary figures shown on the dashboard overview.
type PaymentStats struct {
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	TotalCommission       decimal.Decimal `json:"total_commission"`
	PendingPayoutAmount   decimal.Decimal `json:"pending_payout_amount"`
	CompletedPayoutAmount decimal.Decimal `json:"completed_payout_amount"`
	TransactionCount      int             `json:"transaction_count"`
	Currency              string          `json:"currency"`
	DateRangeStart        string          `json:"date_range_start,omitempty"`
}

// Snapshot is the result of one load of the pending payout data.
type Snapshot struct {
	Payouts   []PendingPayout `json:"payouts"`
	Stats     *PaymentStats   `json:"stats,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Payout returns the pending payout for sellerID, if present.
func (s *Snapshot) Payout(sellerID string) (*PendingPayout, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Payouts {
		if s.Payouts[i].Seller.ID == sellerID {
			return &s.Payouts[i], true
		}
	}
	return nil, false
}

// ============================================================
// Payout schedules
// ============================================================

// CreateSchedulesRequest is the payload for creating payout schedules.
// TransactionIDs only carries sellers whose selection is partial; a seller
// listed in SellerIDs without an entry means "all outstanding transactions",
// resolved by the remote system at processing time.
type CreateSchedulesRequest struct {
	SellerIDs      []string            `json:"seller_ids"`
	ScheduledDate  string              `json:"scheduled_date"`
	Notes          string              `json:"notes,omitempty"`
	TransactionIDs map[string][]string `json:"transaction_ids,omitempty"`
	IdempotencyKey string              `json:"-"`
}

// PayoutSchedule is a schedule record created by the remote system.
type PayoutSchedule struct {
	ID               string          `json:"id"`
	SellerID         string          `json:"seller_id"`
	ScheduledDate    string          `json:"scheduled_date"`
	Status           string          `json:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TransactionCount int             `json:"transaction_count"`
}

// SellerFailure is a seller the remote system refused to schedule.
type SellerFailure struct {
	SellerID string `json:"seller_id"`
	Reason   string `json:"reason"`
}

// CreateSchedulesResult is the remote answer to a create call.
type CreateSchedulesResult struct {
	Schedules []PayoutSchedule `json:"schedules"`
	Failed    []SellerFailure  `json:"failed,omitempty"`
}

// ProcessPayoutsRequest asks the remote system to pay out the given schedules.
type ProcessPayoutsRequest struct {
	ScheduleIDs  []string `json:"schedule_ids"`
	ForceProcess bool     `json:"force_process"`
}

// ScheduleFailure is a schedule the remote system failed to process.
type ScheduleFailure struct {
	ScheduleID string `json:"schedule_id"`
	Reason     string `json:"reason"`
}

// ProcessPayoutsResult is the remote answer to a process call.
type ProcessPayoutsResult struct {
	Processed []string          `json:"processed"`
	Failed    []ScheduleFailure `json:"failed,omitempty"`
}

// ScheduleOutcome is what the console reports after a schedule submission.
type ScheduleOutcome struct {
	ScheduleIDs []string        `json:"schedule_ids"`
	Succeeded   []string        `json:"succeeded_sellers"`
	Failed      []SellerFailure `json:"failed_sellers,omitempty"`
}

// Partial reports whether some sellers were rejected.
func (o *ScheduleOutcome) Partial() bool {
	return o != nil && len(o.Failed) > 0
}

// PayNowOutcome is the result of a successful immediate payout.
type PayNowOutcome struct {
	SellerID   string `json:"seller_id"`
	ScheduleID string `json:"schedule_id"`
}
