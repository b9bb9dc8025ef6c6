package selection

// ============================================================
// Reconciliation rules
// ============================================================

// ToggleSeller clears sellerID when it is fully selected and otherwise
// selects every transaction it has in the snapshot. Unknown sellers leave
// the state unchanged.
func (s State) ToggleSeller(ix *Index, sellerID string) State {
	if !ix.HasSeller(sellerID) {
		return s
	}
	m := s.clone()
	if s.Classification(sellerID) == Full {
		delete(m, sellerID)
		return stateOf(m)
	}
	put(m, sellerID, fullSet(ix, sellerID), ix.TransactionCount(sellerID))
	return stateOf(m)
}

// ToggleTransaction flips txID in the selection of sellerID and
// reclassifies the seller. Transactions that are not part of the seller's
// current payout are never admitted.
func (s State) ToggleTransaction(ix *Index, sellerID, txID string) State {
	if !ix.HasTransaction(sellerID, txID) {
		return s
	}

	txs := make(map[string]struct{})
	if e, ok := s.sellers[sellerID]; ok {
		for id := range e.txs {
			if ix.HasTransaction(sellerID, id) {
				txs[id] = struct{}{}
			}
		}
	}
	if _, on := txs[txID]; on {
		delete(txs, txID)
	} else {
		txs[txID] = struct{}{}
	}

	m := s.clone()
	put(m, sellerID, txs, ix.TransactionCount(sellerID))
	return stateOf(m)
}

// SelectAll marks every seller of the snapshot as fully selected.
func (s State) SelectAll(ix *Index) State {
	sellers := ix.Sellers()
	if len(sellers) == 0 {
		return s
	}
	m := make(map[string]entry, len(sellers))
	for _, id := range sellers {
		put(m, id, fullSet(ix, id), ix.TransactionCount(id))
	}
	return stateOf(m)
}

// DeselectAll returns the empty selection.
func (s State) DeselectAll() State {
	return State{}
}

// Without drops the given sellers from the selection.
func (s State) Without(sellerIDs ...string) State {
	if len(sellerIDs) == 0 || s.IsEmpty() {
		return s
	}
	m := s.clone()
	for _, id := range sellerIDs {
		delete(m, id)
	}
	return stateOf(m)
}

// Reconcile intersects the selection with a freshly loaded snapshot.
// Sellers and transactions that are no longer outstanding are dropped and
// every surviving seller is reclassified against its new transaction set.
// It returns the number of transaction selections that were dropped.
func (s State) Reconcile(ix *Index) (State, int) {
	if s.IsEmpty() {
		return s, 0
	}
	dropped := 0
	m := make(map[string]entry, len(s.sellers))
	for sellerID, e := range s.sellers {
		if !ix.HasSeller(sellerID) {
			dropped += len(e.txs)
			continue
		}
		kept := make(map[string]struct{}, len(e.txs))
		for id := range e.txs {
			if ix.HasTransaction(sellerID, id) {
				kept[id] = struct{}{}
			} else {
				dropped++
			}
		}
		put(m, sellerID, kept, ix.TransactionCount(sellerID))
	}
	return stateOf(m), dropped
}

func fullSet(ix *Index, sellerID string) map[string]struct{} {
	ids := ix.Transactions(sellerID)
	txs := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		txs[id] = struct{}{}
	}
	return txs
}
