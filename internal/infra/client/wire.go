package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// ============================================================
// Wire DTOs (payout API JSON)
// ============================================================

// flexID accepts identifiers sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %s", n)
	}
	*f = flexID(n.String())
	return nil
}

type transactionDTO struct {
	ID          flexID           `json:"id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Currency    string           `json:"currency" validate:"required"`
	CreatedAt   *time.Time       `json:"created_at" validate:"required"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
}

type pendingPayoutDTO struct {
	SellerID         flexID           `json:"seller_id" validate:"required"`
	SellerName       string           `json:"seller_name"`
	SellerEmail      string           `json:"seller_email"`
	TotalAmount      *decimal.Decimal `json:"total_amount" validate:"required"`
	TransactionCount *int             `json:"transaction_count" validate:"required"`
	Transactions     []transactionDTO `json:"transactions" validate:"required,min=1,dive"`
}

type paymentStatsDTO struct {
	TotalRevenue          *decimal.Decimal `json:"total_revenue" validate:"required"`
	TotalCommission       *decimal.Decimal `json:"total_commission" validate:"required"`
	PendingPayoutAmount   *decimal.Decimal `json:"pending_payout_amount" validate:"required"`
	CompletedPayoutAmount *decimal.Decimal `json:"completed_payout_amount" validate:"required"`
	TransactionCount      *int             `json:"transaction_count" validate:"required"`
	Currency              string           `json:"currency"`
}

type scheduleDTO struct {
	ID               flexID           `json:"id" validate:"required"`
	SellerID         flexID           `json:"seller_id" validate:"required"`
	ScheduledDate    string           `json:"scheduled_date" validate:"required"`
	Status           string           `json:"status"`
	TotalAmount      *decimal.Decimal `json:"total_amount" validate:"required"`
	TransactionCount *int             `json:"transaction_count" validate:"required"`
}

type sellerFailureDTO struct {
	SellerID flexID `json:"seller_id" validate:"required"`
	Error    string `json:"error"`
}

type createSchedulesResponseDTO struct {
	Schedules []scheduleDTO      `json:"schedules" validate:"dive"`
	Failed    []sellerFailureDTO `json:"failed" validate:"dive"`
}

type scheduleFailureDTO struct {
	ScheduleID flexID `json:"schedule_id" validate:"required"`
	Error      string `json:"error"`
}

type processPayoutsResponseDTO struct {
	Processed []flexID             `json:"processed" validate:"dive,required"`
	Failed    []scheduleFailureDTO `json:"failed" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func malformed(reason string, args ...any) error {
	return &domain.ErrMalformedResponse{Service: serviceName, Reason: fmt.Sprintf(reason, args...)}
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed '%s'", fe.Namespace(), fe.Tag())
	}
	return err.Error()
}

// ============================================================
// Conversion to domain (with cross-checks)
// ============================================================

func toPendingPayouts(dtos []pendingPayoutDTO) ([]domain.PendingPayout, error) {
	out := make([]domain.PendingPayout, 0, len(dtos))
	seenSellers := make(map[string]struct{}, len(dtos))

	for i := range dtos {
		d := &dtos[i]
		if err := validate.Struct(d); err != nil {
			return nil, malformed("pending payout #%d: %s", i, validationReason(err))
		}
		sellerID := string(d.SellerID)
		if _, dup := seenSellers[sellerID]; dup {
			return nil, malformed("seller %s listed more than once", sellerID)
		}
		seenSellers[sellerID] = struct{}{}

		if *d.TransactionCount != len(d.Transactions) {
			return nil, malformed("seller %s: transaction_count %d but %d transactions",
				sellerID, *d.TransactionCount, len(d.Transactions))
		}

		p := domain.PendingPayout{
			Seller:           domain.Seller{ID: sellerID, Name: d.SellerName, Email: d.SellerEmail},
			Transactions:     make([]domain.Transaction, 0, len(d.Transactions)),
			TotalAmount:      *d.TotalAmount,
			TransactionCount: *d.TransactionCount,
		}

		sum := decimal.Zero
		seenTx := make(map[string]struct{}, len(d.Transactions))
		for _, t := range d.Transactions {
			txID := string(t.ID)
			if _, dup := seenTx[txID]; dup {
				return nil, malformed("seller %s: transaction %s listed more than once", sellerID, txID)
			}
			seenTx[txID] = struct{}{}

			sum = sum.Add(*t.Amount)
			if p.OldestAt.IsZero() || t.CreatedAt.Before(p.OldestAt) {
				p.OldestAt = *t.CreatedAt
			}
			p.Transactions = append(p.Transactions, domain.Transaction{
				ID:          txID,
				SellerID:    sellerID,
				Amount:      *t.Amount,
				Currency:    t.Currency,
				CreatedAt:   *t.CreatedAt,
				Title:       t.Title,
				Description: t.Description,
			})
		}
		if !sum.Equal(p.TotalAmount) {
			return nil, malformed("seller %s: total_amount %s does not match sum of transactions %s",
				sellerID, p.TotalAmount, sum)
		}
		out = append(out, p)
	}
	return out, nil
}

func toPaymentStats(d *paymentStatsDTO, dateRangeStart string) (*domain.PaymentStats, error) {
	if err := validate.Struct(d); err != nil {
		return nil, malformed("payment stats: %s", validationReason(err))
	}
	return &domain.PaymentStats{
		TotalRevenue:          *d.TotalRevenue,
		TotalCommission:       *d.TotalCommission,
		PendingPayoutAmount:   *d.PendingPayoutAmount,
		CompletedPayoutAmount: *d.CompletedPayoutAmount,
		TransactionCount:      *d.TransactionCount,
		Currency:              d.Currency,
		DateRangeStart:        dateRangeStart,
	}, nil
}

func toCreateSchedulesResult(d *createSchedulesResponseDTO, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error) {
	if err := validate.Struct(d); err != nil {
		return nil, malformed("create schedules: %s", validationReason(err))
	}

	requested := make(map[string]bool, len(req.SellerIDs))
	for _, id := range req.SellerIDs {
		requested[id] = false
	}
	// A seller may come back with several schedules; those exist remotely
	// and must reach the caller, so only unrequested sellers are malformed.
	claim := func(sellerID string) error {
		if _, ok := requested[sellerID]; !ok {
			return malformed("create schedules: unexpected seller %s in response", sellerID)
		}
		requested[sellerID] = true
		return nil
	}

	res := &domain.CreateSchedulesResult{
		Schedules: make([]domain.PayoutSchedule, 0, len(d.Schedules)),
	}
	for _, s := range d.Schedules {
		if err := claim(string(s.SellerID)); err != nil {
			return nil, err
		}
		res.Schedules = append(res.Schedules, domain.PayoutSchedule{
			ID:               string(s.ID),
			SellerID:         string(s.SellerID),
			ScheduledDate:    s.ScheduledDate,
			Status:           s.Status,
			TotalAmount:      *s.TotalAmount,
			TransactionCount: *s.TransactionCount,
		})
	}
	for _, f := range d.Failed {
		if err := claim(string(f.SellerID)); err != nil {
			return nil, err
		}
		res.Failed = append(res.Failed, domain.SellerFailure{SellerID: string(f.SellerID), Reason: f.Error})
	}

	// A seller the API neither scheduled nor rejected is treated as rejected.
	var missing []string
	for id, answered := range requested {
		if !answered {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		res.Failed = append(res.Failed, domain.SellerFailure{SellerID: id, Reason: "no result returned for seller"})
	}
	return res, nil
}

func toProcessPayoutsResult(d *processPayoutsResponseDTO, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error) {
	if err := validate.Struct(d); err != nil {
		return nil, malformed("process payouts: %s", validationReason(err))
	}

	requested := make(map[string]struct{}, len(req.ScheduleIDs))
	for _, id := range req.ScheduleIDs {
		requested[id] = struct{}{}
	}

	res := &domain.ProcessPayoutsResult{Processed: make([]string, 0, len(d.Processed))}
	for _, id := range d.Processed {
		if _, ok := requested[string(id)]; !ok {
			return nil, malformed("process payouts: unexpected schedule %s in response", id)
		}
		res.Processed = append(res.Processed, string(id))
	}
	for _, f := range d.Failed {
		if _, ok := requested[string(f.ScheduleID)]; !ok {
			return nil, malformed("process payouts: unexpected schedule %s in response", f.ScheduleID)
		}
		res.Failed = append(res.Failed, domain.ScheduleFailure{ScheduleID: string(f.ScheduleID), Reason: f.Error})
	}
	return res, nil
}
