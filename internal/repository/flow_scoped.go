// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package repository

import (
	"context"

	"grimm.is/flywall/internal/domain"
)

// FlowScopedEntity is implemented by configs that can be filtered by the
// flow they apply to (spec §4.1 "flow-scoped lookup").
type FlowScopedEntity interface {
	MatchesFlow(id domain.FlowID) bool
}

// FindByFlowID returns every row in repo matching flowID, evaluated
// in-process over List (these tables are small enough that no
// SQL-level index on flow_id is warranted).
func FindByFlowID[ID comparable, D interface {
	Entity[ID]
	FlowScopedEntity
}](ctx context.Context, repo *Repository[ID, D], flowID domain.FlowID) ([]D, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]D, 0, len(all))
	for _, d := range all {
		if d.MatchesFlow(flowID) {
			out = append(out, d)
		}
	}
	return out, nil
}
