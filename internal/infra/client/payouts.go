// Package client implements the adapter for the remote marketplace payout API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

const (
	serviceName = "payout-api"

	pendingPayoutsPath  = "/api/payments/pending-payouts/"
	paymentStatsPath    = "/api/payments/stats/"
	createSchedulesPath = "/api/payments/payout-schedules/create/"
	processPayoutsPath  = "/api/payments/payouts/process/"

	maxErrorBody = 4 << 10
)

// PayoutClient talks to the marketplace payout API with circuit breaker,
// bulkhead, tracing, and retries for reads. Mutating calls are attempted once.
type PayoutClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
}

// NewPayoutClient creates a new PayoutClient.
func NewPayoutClient(httpClient *http.Client, baseURL, token string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *PayoutClient {
	return &PayoutClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

// GetPendingPayouts fetches every seller with outstanding payable transactions.
func (c *PayoutClient) GetPendingPayouts(ctx context.Context) ([]domain.PendingPayout, error) {
	ctx, span := tracer.Start(ctx, "PayoutClient.GetPendingPayouts")
	defer span.End()

	var dtos []pendingPayoutDTO
	err := c.call(ctx, "get-pending-payouts", c.cfg, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, pendingPayoutsPath, nil, nil)
	}, func(body io.Reader) error {
		dtos = nil
		if err := json.NewDecoder(body).Decode(&dtos); err != nil {
			return malformed("pending payouts: %v", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	payouts, err := toPendingPayouts(dtos)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("payouts.sellers", len(payouts)))
	return payouts, nil
}

// GetPaymentStats fetches the overview figures. dateRangeStart may be empty.
func (c *PayoutClient) GetPaymentStats(ctx context.Context, dateRangeStart string) (*domain.PaymentStats, error) {
	ctx, span := tracer.Start(ctx, "PayoutClient.GetPaymentStats")
	defer span.End()
	span.SetAttributes(attribute.String("stats.date_range_start", dateRangeStart))

	var query url.Values
	if dateRangeStart != "" {
		query = url.Values{"date_range_start": {dateRangeStart}}
	}

	var dto paymentStatsDTO
	err := c.call(ctx, "get-payment-stats", c.cfg, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, paymentStatsPath, query, nil)
	}, func(body io.Reader) error {
		dto = paymentStatsDTO{}
		if err := json.NewDecoder(body).Decode(&dto); err != nil {
			return malformed("payment stats: %v", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	stats, err := toPaymentStats(&dto, dateRangeStart)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return stats, nil
}

// CreatePayoutSchedules asks the API to schedule payouts for the given sellers.
// Sellers the API refuses come back in the result's Failed list.
func (c *PayoutClient) CreatePayoutSchedules(ctx context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error) {
	ctx, span := tracer.Start(ctx, "PayoutClient.CreatePayoutSchedules")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("payouts.seller_ids", req.SellerIDs),
		attribute.String("payouts.scheduled_date", req.ScheduledDate),
	)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding create schedules request: %w", err)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	headers := http.Header{"Idempotency-Key": {key}}

	var dto createSchedulesResponseDTO
	err = c.call(ctx, "create-payout-schedules", c.cfg.NoRetry(), func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, createSchedulesPath, nil, bytes.NewReader(payload), headers)
	}, func(body io.Reader) error {
		dto = createSchedulesResponseDTO{}
		if err := json.NewDecoder(body).Decode(&dto); err != nil {
			return malformed("create schedules: %v", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	res, err := toCreateSchedulesResult(&dto, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("payouts.schedules_created", len(res.Schedules)),
		attribute.Int("payouts.sellers_failed", len(res.Failed)),
	)
	return res, nil
}

// ProcessPayouts triggers payment of the given schedules.
func (c *PayoutClient) ProcessPayouts(ctx context.Context, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error) {
	ctx, span := tracer.Start(ctx, "PayoutClient.ProcessPayouts")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("payouts.schedule_ids", req.ScheduleIDs),
		attribute.Bool("payouts.force_process", req.ForceProcess),
	)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding process payouts request: %w", err)
	}

	var dto processPayoutsResponseDTO
	err = c.call(ctx, "process-payouts", c.cfg.NoRetry(), func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, processPayoutsPath, nil, bytes.NewReader(payload))
	}, func(body io.Reader) error {
		dto = processPayoutsResponseDTO{}
		if err := json.NewDecoder(body).Decode(&dto); err != nil {
			return malformed("process payouts: %v", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	res, err := toProcessPayoutsResult(&dto, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return res, nil
}

// ============================================================
// Plumbing
// ============================================================

func (c *PayoutClient) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, headers ...http.Header) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, h := range headers {
		for k, vs := range h {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// call runs one logical API call through the bulkhead, the breaker and the
// retry loop, then maps the failure into a domain error.
func (c *PayoutClient) call(ctx context.Context, op string, cfg resilience.Config, build func() (*http.Request, error), decode func(io.Reader) error) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return mapError(ctx, op, err)
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			req, err := build()
			if err != nil {
				return resilience.Permanent(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return statusErr
				}
				return resilience.Permanent(statusErr)
			}

			if err := decode(resp.Body); err != nil {
				return resilience.Permanent(err)
			}
			return nil
		})
	})
	if err != nil {
		return mapError(ctx, op, err)
	}
	return nil
}

// StatusError is a non-2xx answer from the payout API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: payout API returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: payout API returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

func mapError(ctx context.Context, op string, err error) error {
	var bad *domain.ErrMalformedResponse
	if errors.As(err, &bad) {
		return bad
	}
	if resilience.IsCircuitOpen(err) {
		return &domain.ErrCircuitOpen{Service: serviceName}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.ErrTimeout{Operation: op}
	}
	return &domain.ErrExternalService{Service: serviceName, Err: err}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
