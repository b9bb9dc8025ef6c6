package commands_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordicloop-admin/payout-console/internal/commands"
	"github.com/nordicloop-admin/payout-console/internal/domain"
)

const pendingJSON = `[
  {"seller_id":1,"seller_name":"Acme Recycling","total_amount":"150","transaction_count":2,
   "transactions":[
     {"id":11,"amount":"100","currency":"EUR","created_at":"2024-04-01T09:00:00Z"},
     {"id":12,"amount":"50","currency":"EUR","created_at":"2024-04-02T09:00:00Z"}]},
  {"seller_id":2,"seller_name":"Baltic Metals","total_amount":"200","transaction_count":1,
   "transactions":[{"id":21,"amount":"200","currency":"EUR","created_at":"2024-04-03T09:00:00Z"}]}
]`

type fakeAPI struct {
	mu          sync.Mutex
	creates     []map[string]any
	processed   int
	lastStatsQ  string
	lastAuthHdr string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuthHdr = r.Header.Get("Authorization")

	switch r.URL.Path {
	case "/api/payments/pending-payouts/":
		io.WriteString(w, pendingJSON)
	case "/api/payments/stats/":
		f.lastStatsQ = r.URL.Query().Get("date_range_start")
		io.WriteString(w, `{"total_revenue":"900","total_commission":"90","pending_payout_amount":"350",
			"completed_payout_amount":"460","transaction_count":9,"currency":"EUR"}`)
	case "/api/payments/payout-schedules/create/":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.creates = append(f.creates, body)
		var out []map[string]any
		for _, id := range body["seller_ids"].([]any) {
			out = append(out, map[string]any{
				"id": 500 + len(out), "seller_id": id, "scheduled_date": body["scheduled_date"],
				"status": "scheduled", "total_amount": "1", "transaction_count": 1,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"schedules": out})
	case "/api/payments/payouts/process/":
		f.processed++
		io.WriteString(w, `{"processed":[500]}`)
	default:
		http.NotFound(w, r)
	}
}

func run(t *testing.T, api *fakeAPI, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	t.Setenv("PAYMENT_API_TOKEN", "ops-token")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("REDIS_URL", "")

	root := commands.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--api-url", srv.URL,
		"--log-level", "error",
	}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPending(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "pending")
	require.NoError(t, err)

	var payouts []domain.PendingPayout
	require.NoError(t, json.Unmarshal([]byte(out), &payouts))
	require.Len(t, payouts, 2)
	assert.Equal(t, "1", payouts[0].Seller.ID)
	assert.Equal(t, "150", payouts[0].TotalAmount.String())
	assert.Equal(t, "Bearer ops-token", api.lastAuthHdr)
}

func TestStats(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "stats", "--since", "2024-01-01")
	require.NoError(t, err)

	var stats domain.PaymentStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 9, stats.TransactionCount)
	assert.Equal(t, "2024-01-01", api.lastStatsQ)
}

func TestStats_BadDate(t *testing.T) {
	_, err := run(t, &fakeAPI{}, "stats", "--since", "January")
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
}

func TestSchedule_SellersAndTransactions(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "schedule", "--date", "2024-05-01", "--notes", "May run",
		"--seller", "2", "--tx", "1:11", "--tx", "1:11", "--tx", "2:21")
	require.NoError(t, err)

	var outcome domain.ScheduleOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.ElementsMatch(t, []string{"1", "2"}, outcome.Succeeded)

	require.Len(t, api.creates, 1)
	sent := api.creates[0]
	assert.ElementsMatch(t, []any{"1", "2"}, sent["seller_ids"])
	assert.Equal(t, map[string]any{"1": []any{"11"}}, sent["transaction_ids"])
	assert.Equal(t, "2024-05-01", sent["scheduled_date"])
	assert.Equal(t, "May run", sent["notes"])
}

func TestSchedule_RejectsUnknownReferences(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown seller", []string{"--seller", "9"}},
		{"unknown transaction", []string{"--tx", "1:99"}},
		{"transaction of another seller", []string{"--tx", "2:11"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			_, err := run(t, api, append([]string{"schedule", "--date", "2024-05-01"}, tt.args...)...)
			var nf *domain.ErrNotFound
			require.ErrorAs(t, err, &nf)
			assert.Empty(t, api.creates)
		})
	}
}

func TestSchedule_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"malformed tx flag", []string{"--date", "2024-05-01", "--tx", "111"}, "tx"},
		{"nothing selected", []string{"--date", "2024-05-01"}, "sellers"},
		{"bad date", []string{"--date", "01/05/2024", "--seller", "1"}, "scheduled_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			_, err := run(t, api, append([]string{"schedule"}, tt.args...)...)
			var verr *domain.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, api.creates)
		})
	}
}

func TestPayNow(t *testing.T) {
	api := &fakeAPI{}
	out, err := run(t, api, "pay-now", "1", "--yes")
	require.NoError(t, err)

	var outcome domain.PayNowOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, domain.PayNowOutcome{SellerID: "1", ScheduleID: "500"}, outcome)
	assert.Equal(t, 1, api.processed)
}

func TestPayNow_RequiresConfirmation(t *testing.T) {
	api := &fakeAPI{}
	_, err := run(t, api, "pay-now", "1")
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, api.creates)
	assert.Zero(t, api.processed)
}
