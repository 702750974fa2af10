package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
)

// ExtrasRepository reads the extras catalog: groups, their items, and the
// attachments linking catalog items to item-scoped groups. Inactive groups
// and items are filtered at the query level.
type ExtrasRepository struct {
	db *sql.DB
}

func (r *ExtrasRepository) ListGlobalGroups(ctx context.Context) ([]domain.ExtraGroup, error) {
	const op = "extras.ListGlobalGroups"

	rows, err := runner(ctx, r.db).QueryContext(ctx, `
		SELECT id, name, scope, min_selections, max_selections, active
		FROM extra_groups
		WHERE scope = $1 AND active
		ORDER BY id`, string(domain.ScopeGlobal))
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	var (
		groups []domain.ExtraGroup
		ids    []string
		index  = map[string]int{}
	)
	for rows.Next() {
		group, err := scanExtraGroup(rows.Scan)
		if err != nil {
			return nil, wrapError(op, err)
		}
		index[group.ID] = len(groups)
		groups = append(groups, group)
		ids = append(ids, group.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}

	if err := r.attachItems(ctx, op, ids, func(item domain.ExtraItem) {
		i := index[item.GroupID]
		groups[i].Items = append(groups[i].Items, item)
	}); err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *ExtrasRepository) GetGroups(ctx context.Context, groupIDs []string) (map[string]domain.ExtraGroup, error) {
	const op = "extras.GetGroups"

	groups := make(map[string]domain.ExtraGroup, len(groupIDs))
	if len(groupIDs) == 0 {
		return groups, nil
	}

	rows, err := runner(ctx, r.db).QueryContext(ctx, `
		SELECT id, name, scope, min_selections, max_selections, active
		FROM extra_groups
		WHERE id = ANY($1) AND active`, pq.Array(groupIDs))
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		group, err := scanExtraGroup(rows.Scan)
		if err != nil {
			return nil, wrapError(op, err)
		}
		groups[group.ID] = group
		found = append(found, group.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}

	if err := r.attachItems(ctx, op, found, func(item domain.ExtraItem) {
		group := groups[item.GroupID]
		group.Items = append(group.Items, item)
		groups[item.GroupID] = group
	}); err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *ExtrasRepository) attachItems(ctx context.Context, op string, groupIDs []string, add func(domain.ExtraItem)) error {
	if len(groupIDs) == 0 {
		return nil
	}

	rows, err := runner(ctx, r.db).QueryContext(ctx, `
		SELECT id, group_id, name, price, active
		FROM extra_items
		WHERE group_id = ANY($1) AND active
		ORDER BY group_id, id`, pq.Array(groupIDs))
	if err != nil {
		return wrapError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  domain.ExtraItem
			price int64
		)
		if err := rows.Scan(&item.ID, &item.GroupID, &item.Name, &price, &item.Active); err != nil {
			return wrapError(op, err)
		}
		item.Price = money.Amount(price)
		add(item)
	}
	if err := rows.Err(); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func scanExtraGroup(scan func(dest ...any) error) (domain.ExtraGroup, error) {
	var (
		group domain.ExtraGroup
		scope string
	)
	if err := scan(&group.ID, &group.Name, &scope, &group.MinSelections, &group.MaxSelections, &group.Active); err != nil {
		return domain.ExtraGroup{}, err
	}
	group.Scope = domain.GroupScope(scope)
	return group, nil
}

func (r *ExtrasRepository) ListLinksForItems(ctx context.Context, catalogItemIDs []string) (map[string][]domain.CatalogExtraLink, error) {
	const op = "extras.ListLinksForItems"

	links := make(map[string][]domain.CatalogExtraLink, len(catalogItemIDs))
	if len(catalogItemIDs) == 0 {
		return links, nil
	}

	rows, err := runner(ctx, r.db).QueryContext(ctx, `
		SELECT l.catalog_item_id, l.group_id
		FROM catalog_extra_links l
		JOIN extra_groups g ON g.id = l.group_id AND g.active
		WHERE l.catalog_item_id = ANY($1)
		ORDER BY l.catalog_item_id, l.group_id`, pq.Array(catalogItemIDs))
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var link domain.CatalogExtraLink
		if err := rows.Scan(&link.CatalogItemID, &link.GroupID); err != nil {
			return nil, wrapError(op, err)
		}
		links[link.CatalogItemID] = append(links[link.CatalogItemID], link)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}

	return links, nil
}
