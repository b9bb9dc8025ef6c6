package selection

import (
	"fmt"
	"sort"
)

// Classification is the seller-level selection status.
type Classification int

const (
	// None means no transaction of the seller is selected.
	None Classification = iota
	// Partial means a non-empty strict subset is selected.
	Partial
	// Full means every outstanding transaction of the seller is selected.
	Full
)

func (c Classification) String() string {
	switch c {
	case Partial:
		return "partial"
	case Full:
		return "full"
	default:
		return "none"
	}
}

// MarshalText renders the classification as its lowercase name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (c *Classification) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*c = None
	case "partial":
		*c = Partial
	case "full":
		*c = Full
	default:
		return fmt.Errorf("unknown classification %q", b)
	}
	return nil
}

// State maps seller ids to their selected transaction ids.
//
// A seller is present iff its set is non-empty; its classification is
// decided when the entry is written and never recomputed by readers.
// The zero value is the empty selection.
type State struct {
	sellers map[string]entry
}

type entry struct {
	txs   map[string]struct{}
	class Classification
}

// Empty returns the empty selection.
func Empty() State {
	return State{}
}

// Len returns the number of sellers with a non-empty selection.
func (s State) Len() int {
	return len(s.sellers)
}

// IsEmpty reports whether nothing is selected.
func (s State) IsEmpty() bool {
	return len(s.sellers) == 0
}

// Classification returns the stored classification of sellerID.
func (s State) Classification(sellerID string) Classification {
	if e, ok := s.sellers[sellerID]; ok {
		return e.class
	}
	return None
}

// Has reports whether sellerID has any selected transaction.
func (s State) Has(sellerID string) bool {
	_, ok := s.sellers[sellerID]
	return ok
}

// IsSelected reports whether txID of sellerID is selected.
func (s State) IsSelected(sellerID, txID string) bool {
	e, ok := s.sellers[sellerID]
	if !ok {
		return false
	}
	_, ok = e.txs[txID]
	return ok
}

// Sellers returns the selected seller ids, sorted.
func (s State) Sellers() []string {
	out := make([]string, 0, len(s.sellers))
	for id := range s.sellers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Selected returns the selected transaction ids of sellerID, sorted.
func (s State) Selected(sellerID string) []string {
	e, ok := s.sellers[sellerID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.txs))
	for id := range e.txs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both states select exactly the same transactions
// with the same classifications.
func (s State) Equal(o State) bool {
	if len(s.sellers) != len(o.sellers) {
		return false
	}
	for id, e := range s.sellers {
		oe, ok := o.sellers[id]
		if !ok || oe.class != e.class || len(oe.txs) != len(e.txs) {
			return false
		}
		for tx := range e.txs {
			if _, ok := oe.txs[tx]; !ok {
				return false
			}
		}
	}
	return true
}

// clone copies the seller map. Entries are shared; transitions replace an
// entry instead of mutating it.
func (s State) clone() map[string]entry {
	m := make(map[string]entry, len(s.sellers)+1)
	for k, v := range s.sellers {
		m[k] = v
	}
	return m
}

// put writes the set for sellerID, classified against total. An empty set
// removes the seller.
func put(m map[string]entry, sellerID string, txs map[string]struct{}, total int) {
	switch n := len(txs); {
	case n == 0 || total == 0:
		delete(m, sellerID)
	case n == total:
		m[sellerID] = entry{txs: txs, class: Full}
	default:
		m[sellerID] = entry{txs: txs, class: Partial}
	}
}

func stateOf(m map[string]entry) State {
	if len(m) == 0 {
		return State{}
	}
	return State{sellers: m}
}
