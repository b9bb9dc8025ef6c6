// Package selection holds the two-level payout selection of a dashboard
// session: which sellers, and which of their transactions, are marked for
// the next payout schedule.
//
// State values are immutable. Every transition takes the current State and
// the Index of the current snapshot and returns a new State, so the rules
// can be exercised without any transport or rendering layer.
package selection

import "github.com/nordicloop-admin/payout-console/internal/domain"

// Index is the read-only view of a snapshot that the selection rules
// consult: the sellers present and the transaction ids each one owns.
type Index struct {
	order   []string
	sellers map[string]*sellerIndex
}

type sellerIndex struct {
	payout  *domain.PendingPayout
	txOrder []string
	txs     map[string]*domain.Transaction
}

// NewIndex indexes the pending payouts of a snapshot. Sellers keep the
// snapshot order; a seller listed twice keeps its first occurrence.
func NewIndex(payouts []domain.PendingPayout) *Index {
	ix := &Index{
		order:   make([]string, 0, len(payouts)),
		sellers: make(map[string]*sellerIndex, len(payouts)),
	}
	for i := range payouts {
		p := &payouts[i]
		if _, dup := ix.sellers[p.Seller.ID]; dup {
			continue
		}
		si := &sellerIndex{
			payout:  p,
			txOrder: make([]string, 0, len(p.Transactions)),
			txs:     make(map[string]*domain.Transaction, len(p.Transactions)),
		}
		for j := range p.Transactions {
			tx := &p.Transactions[j]
			if _, dup := si.txs[tx.ID]; dup {
				continue
			}
			si.txOrder = append(si.txOrder, tx.ID)
			si.txs[tx.ID] = tx
		}
		ix.order = append(ix.order, p.Seller.ID)
		ix.sellers[p.Seller.ID] = si
	}
	return ix
}

// Sellers returns the seller ids in snapshot order.
func (ix *Index) Sellers() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// HasSeller reports whether sellerID is part of the snapshot.
func (ix *Index) HasSeller(sellerID string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.sellers[sellerID]
	return ok
}

// HasTransaction reports whether txID belongs to sellerID in the snapshot.
func (ix *Index) HasTransaction(sellerID, txID string) bool {
	if ix == nil {
		return false
	}
	si, ok := ix.sellers[sellerID]
	if !ok {
		return false
	}
	_, ok = si.txs[txID]
	return ok
}

// Transactions returns the transaction ids of sellerID in snapshot order.
func (ix *Index) Transactions(sellerID string) []string {
	if ix == nil {
		return nil
	}
	si, ok := ix.sellers[sellerID]
	if !ok {
		return nil
	}
	out := make([]string, len(si.txOrder))
	copy(out, si.txOrder)
	return out
}

// TransactionCount returns how many transactions sellerID has outstanding.
func (ix *Index) TransactionCount(sellerID string) int {
	if ix == nil {
		return 0
	}
	if si, ok := ix.sellers[sellerID]; ok {
		return len(si.txOrder)
	}
	return 0
}

// Payout returns the pending payout of sellerID.
func (ix *Index) Payout(sellerID string) (*domain.PendingPayout, bool) {
	if ix == nil {
		return nil, false
	}
	si, ok := ix.sellers[sellerID]
	if !ok {
		return nil, false
	}
	return si.payout, true
}
