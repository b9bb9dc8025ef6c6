package selection

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SellerTotals is the per-seller display aggregate.
type SellerTotals struct {
	SellerID         string          `json:"seller_id"`
	Classification   Classification  `json:"classification"`
	Total            decimal.Decimal `json:"total_amount"`
	Selected         decimal.Decimal `json:"selected_amount"`
	TransactionCount int             `json:"transaction_count"`
	SelectedCount    int             `json:"selected_count"`
	Currency         string          `json:"currency,omitempty"`
}

// Totals is the dashboard-wide aggregate of a selection.
type Totals struct {
	Sellers         []SellerTotals  `json:"sellers"`
	GrandSelected   decimal.Decimal `json:"grand_selected_amount"`
	SelectedSellers int             `json:"selected_sellers"`
	// Currencies lists the currencies of the selected transactions.
	Currencies []string `json:"currencies,omitempty"`
}

// Aggregate computes display totals for the snapshot and selection.
// Only transactions present in the snapshot contribute; a stale id in the
// selection is ignored.
func Aggregate(ix *Index, s State) Totals {
	t := Totals{
		Sellers:       make([]SellerTotals, 0, len(ix.Sellers())),
		GrandSelected: decimal.Zero,
	}
	currencies := make(map[string]struct{})

	for _, sellerID := range ix.Sellers() {
		si := ix.sellers[sellerID]
		st := SellerTotals{
			SellerID:         sellerID,
			Total:            decimal.Zero,
			Selected:         decimal.Zero,
			TransactionCount: len(si.txOrder),
		}
		sellerCurrencies := make(map[string]struct{})

		for _, txID := range si.txOrder {
			tx := si.txs[txID]
			st.Total = st.Total.Add(tx.Amount)
			sellerCurrencies[tx.Currency] = struct{}{}
			if s.IsSelected(sellerID, txID) {
				st.Selected = st.Selected.Add(tx.Amount)
				st.SelectedCount++
				currencies[tx.Currency] = struct{}{}
			}
		}
		if len(sellerCurrencies) == 1 {
			for c := range sellerCurrencies {
				st.Currency = c
			}
		}

		if st.SelectedCount > 0 {
			st.Classification = s.Classification(sellerID)
			t.SelectedSellers++
			t.GrandSelected = t.GrandSelected.Add(st.Selected)
		}
		t.Sellers = append(t.Sellers, st)
	}

	for c := range currencies {
		t.Currencies = append(t.Currencies, c)
	}
	sort.Strings(t.Currencies)
	return t
}

// Seller returns the totals of sellerID.
func (t Totals) Seller(sellerID string) (SellerTotals, bool) {
	for _, st := range t.Sellers {
		if st.SellerID == sellerID {
			return st, true
		}
	}
	return SellerTotals{}, false
}

// Submission is the selection resolved against a snapshot, in the shape
// the schedule creation call expects.
type Submission struct {
	SellerIDs []string
	// TransactionIDs only holds partially selected sellers.
	TransactionIDs map[string][]string
}

// Submission resolves the selection against the snapshot. Sellers keep
// snapshot order; fully selected sellers carry no explicit transaction
// list. Sellers absent from the snapshot are skipped.
func (s State) Submission(ix *Index) Submission {
	sub := Submission{}
	for _, sellerID := range ix.Sellers() {
		switch s.Classification(sellerID) {
		case None:
			continue
		case Partial:
			var ids []string
			for _, txID := range ix.Transactions(sellerID) {
				if s.IsSelected(sellerID, txID) {
					ids = append(ids, txID)
				}
			}
			if len(ids) == 0 {
				continue
			}
			if sub.TransactionIDs == nil {
				sub.TransactionIDs = make(map[string][]string)
			}
			sub.TransactionIDs[sellerID] = ids
		}
		sub.SellerIDs = append(sub.SellerIDs, sellerID)
	}
	return sub
}
