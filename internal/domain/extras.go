package domain

import "github.com/feastline/api/internal/money"

// GroupScope distinguishes extras groups offered on every catalog item from
// groups attached to specific items.
type GroupScope string

const (
	// ScopeGlobal groups apply to all catalog items.
	ScopeGlobal GroupScope = "global"
	// ScopeItem groups apply only to catalog items linked to them.
	ScopeItem GroupScope = "item"
)

// ExtraItem is a priced add-on belonging to an extras group.
type ExtraItem struct {
	ID      string
	GroupID string
	Name    string
	Price   money.Amount
	Active  bool
}

// ExtraGroup is a named collection of add-ons with selection-count constraints.
// MaxSelections of zero means unbounded.
type ExtraGroup struct {
	ID            string
	Name          string
	Scope         GroupScope
	MinSelections int
	MaxSelections int
	Active        bool
	Items         []ExtraItem
}

// Item returns the group's item with the given id, if present.
func (g ExtraGroup) Item(itemID string) (ExtraItem, bool) {
	for _, it := range g.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return ExtraItem{}, false
}

// AllowsCount reports whether a selection of count items satisfies the
// group's cardinality constraints.
func (g ExtraGroup) AllowsCount(count int) bool {
	if count < g.MinSelections {
		return false
	}
	if g.MaxSelections > 0 && count > g.MaxSelections {
		return false
	}
	return true
}

// CatalogExtraLink attaches an item-scoped extras group to a catalog item.
type CatalogExtraLink struct {
	CatalogItemID string
	GroupID       string
}
