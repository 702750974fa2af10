package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/repositories"
)

var (
	// ErrExtrasInvalidSelection indicates a cart line's extras violate catalog constraints.
	ErrExtrasInvalidSelection = errors.New("extras: invalid selection")
)

// SelectionViolation names the group whose cardinality or membership
// constraint a selection violated.
type SelectionViolation struct {
	GroupID string
	Reason  string
}

func (e *SelectionViolation) Error() string {
	return fmt.Sprintf("extras: invalid selection for group %s: %s", e.GroupID, e.Reason)
}

func (e *SelectionViolation) Unwrap() error { return ErrExtrasInvalidSelection }

// ExtrasResolverDeps bundles collaborators required to construct the resolver.
type ExtrasResolverDeps struct {
	Extras repositories.ExtrasRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// ExtrasResolver merges global and item-linked extras groups and validates
// cart selections against them.
type ExtrasResolver struct {
	extras repositories.ExtrasRepository
	logger func(context.Context, string, map[string]any)
}

// NewExtrasResolver wires the resolver over the extras catalog repository.
func NewExtrasResolver(deps ExtrasResolverDeps) (*ExtrasResolver, error) {
	if deps.Extras == nil {
		return nil, errors.New("extras resolver: extras repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ExtrasResolver{extras: deps.Extras, logger: logger}, nil
}

// ResolveForItems returns the applicable extras groups per catalog item:
// item-linked groups first, then the remaining global groups, deduplicated by
// group id with the first occurrence winning.
func (r *ExtrasResolver) ResolveForItems(ctx context.Context, catalogItemIDs []string) (map[string][]domain.ExtraGroup, error) {
	global, err := r.extras.ListGlobalGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("extras: list global groups: %w", err)
	}

	links, err := r.extras.ListLinksForItems(ctx, catalogItemIDs)
	if err != nil {
		return nil, fmt.Errorf("extras: list item links: %w", err)
	}

	linkedIDs := make([]string, 0)
	seen := map[string]bool{}
	for _, itemLinks := range links {
		for _, link := range itemLinks {
			if !seen[link.GroupID] {
				seen[link.GroupID] = true
				linkedIDs = append(linkedIDs, link.GroupID)
			}
		}
	}

	linkedGroups, err := r.extras.GetGroups(ctx, linkedIDs)
	if err != nil {
		return nil, fmt.Errorf("extras: load linked groups: %w", err)
	}

	resolved := make(map[string][]domain.ExtraGroup, len(catalogItemIDs))
	for _, itemID := range catalogItemIDs {
		var itemLinked []domain.ExtraGroup
		for _, link := range links[itemID] {
			if group, ok := linkedGroups[link.GroupID]; ok {
				itemLinked = append(itemLinked, group)
			}
		}
		resolved[itemID] = MergeExtraGroups(itemLinked, global)
	}

	return resolved, nil
}

// MergeExtraGroups combines item-linked and global groups, dropping inactive
// groups and deduplicating by id with item-linked occurrences taking priority.
func MergeExtraGroups(itemLinked, global []domain.ExtraGroup) []domain.ExtraGroup {
	merged := make([]domain.ExtraGroup, 0, len(itemLinked)+len(global))
	seen := map[string]bool{}

	for _, lists := range [][]domain.ExtraGroup{itemLinked, global} {
		for _, group := range lists {
			if !group.Active || seen[group.ID] {
				continue
			}
			filtered := group
			filtered.Items = nil
			for _, item := range group.Items {
				if item.Active {
					filtered.Items = append(filtered.Items, item)
				}
			}
			seen[group.ID] = true
			merged = append(merged, filtered)
		}
	}

	return merged
}

// ValidateSelections checks a line's selections against the resolved groups
// and returns the priced extras. Groups with a minimum selection count are
// enforced even when the selection omits them entirely.
func ValidateSelections(groups []domain.ExtraGroup, selections []domain.SelectedExtra) ([]domain.ExtraPricing, money.Amount, error) {
	byID := make(map[string]domain.ExtraGroup, len(groups))
	for _, group := range groups {
		byID[group.ID] = group
	}

	counts := map[string]int{}
	priced := make([]domain.ExtraPricing, 0, len(selections))
	var total money.Amount

	for _, sel := range selections {
		group, ok := byID[sel.GroupID]
		if !ok {
			return nil, 0, &SelectionViolation{GroupID: sel.GroupID, Reason: "group not available for this item"}
		}
		item, ok := group.Item(sel.ItemID)
		if !ok {
			return nil, 0, &SelectionViolation{GroupID: sel.GroupID, Reason: fmt.Sprintf("item %s not in group", sel.ItemID)}
		}
		counts[sel.GroupID]++

		sum, err := total.Add(item.Price)
		if err != nil {
			return nil, 0, fmt.Errorf("extras: %w", err)
		}
		total = sum
		priced = append(priced, domain.ExtraPricing{
			GroupID: group.ID,
			ItemID:  item.ID,
			Name:    item.Name,
			Price:   item.Price,
		})
	}

	for _, group := range groups {
		count := counts[group.ID]
		if count == 0 && group.MinSelections == 0 {
			continue
		}
		if !group.AllowsCount(count) {
			reason := fmt.Sprintf("requires between %d and %d selections, got %d", group.MinSelections, group.MaxSelections, count)
			if group.MaxSelections == 0 {
				reason = fmt.Sprintf("requires at least %d selections, got %d", group.MinSelections, count)
			}
			return nil, 0, &SelectionViolation{GroupID: group.ID, Reason: reason}
		}
	}

	return priced, total, nil
}
