// Package tier defines the ordered subscription tier hierarchy that every
// access decision builds on.
package tier

// Tier is a named subscription level, e.g. "free" or "premium".
type Tier string

// Well-known tiers in ascending order of privilege.
const (
	Free       Tier = "free"
	Registered Tier = "registered"
	Basic      Tier = "basic"
	Premium    Tier = "premium"
	Enterprise Tier = "enterprise"
)

// Hierarchy is a fixed total order over tier names. It is built once at
// startup and never mutated, so it is safe for concurrent use.
type Hierarchy struct {
	order []Tier
	ranks map[Tier]int
}

// DefaultOrder is the tier ordering upgrade-path logic depends on. Adjacency
// between consecutive entries decides which upsell copy is shown, so the
// ordering must stay stable across releases.
func DefaultOrder() []Tier {
	return []Tier{Free, Registered, Basic, Premium, Enterprise}
}

// NewHierarchy builds a hierarchy from an ascending tier list. An empty list
// falls back to DefaultOrder.
func NewHierarchy(order ...Tier) *Hierarchy {
	if len(order) == 0 {
		order = DefaultOrder()
	}
	h := &Hierarchy{
		order: make([]Tier, len(order)),
		ranks: make(map[Tier]int, len(order)),
	}
	copy(h.order, order)
	for i, t := range order {
		h.ranks[t] = i
	}
	return h
}

// Rank returns the integer rank of a tier. Unknown tier names resolve to
// rank 0 so a misconfigured or legacy name degrades to minimum access
// instead of failing.
func (h *Hierarchy) Rank(t Tier) int {
	if r, ok := h.ranks[t]; ok {
		return r
	}
	return 0
}

// AtLeast reports whether subject meets or exceeds required.
func (h *Hierarchy) AtLeast(subject, required Tier) bool {
	return h.Rank(subject) >= h.Rank(required)
}

// UpgradeAdjacent reports whether required sits exactly one rank above
// subject. An adjacent lock is worth a specific upsell; anything further
// away gets generic copy.
func (h *Hierarchy) UpgradeAdjacent(subject, required Tier) bool {
	return h.Rank(required) == h.Rank(subject)+1
}

// Known reports whether t is part of the configured ordering.
func (h *Hierarchy) Known(t Tier) bool {
	_, ok := h.ranks[t]
	return ok
}

// Lowest returns the bottom tier, the rank every anonymous subject holds.
func (h *Hierarchy) Lowest() Tier {
	return h.order[0]
}

// Highest returns the top tier.
func (h *Hierarchy) Highest() Tier {
	return h.order[len(h.order)-1]
}

// Order returns a copy of the ascending tier list.
func (h *Hierarchy) Order() []Tier {
	out := make([]Tier, len(h.order))
	copy(out, h.order)
	return out
}
