// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configservice

import "reflect"

// changedFlowID inspects a before/after pair of flow-scoped entity lists
// keyed by the same ID and reports a single flow id to narrow a DnsEvent /
// RouteEvent to, per §4.7 step 3 ("flow_id: Some(n) for single-flow
// changes, None for cross-cutting set operations"). It returns (id, true)
// only when every entity that differs (added, removed, or mutated) shares
// the same flow id; any broader change returns (0, false), signaling
// "all flows".
func changedFlowID[ID comparable, D any](newList, oldList []D, idOf func(D) ID, flowOf func(D) uint32) (uint32, bool) {
	oldByID := make(map[ID]D, len(oldList))
	for _, d := range oldList {
		oldByID[idOf(d)] = d
	}
	newByID := make(map[ID]D, len(newList))
	for _, d := range newList {
		newByID[idOf(d)] = d
	}

	touchedFlowIDs := make(map[uint32]struct{})
	touched := 0
	for id, nd := range newByID {
		od, ok := oldByID[id]
		if ok && reflect.DeepEqual(od, nd) {
			continue
		}
		touched++
		touchedFlowIDs[flowOf(nd)] = struct{}{}
		if ok {
			touchedFlowIDs[flowOf(od)] = struct{}{}
		}
	}
	for id, od := range oldByID {
		if _, ok := newByID[id]; !ok {
			touched++
			touchedFlowIDs[flowOf(od)] = struct{}{}
		}
	}

	if touched == 0 || len(touchedFlowIDs) != 1 {
		return 0, false
	}
	for f := range touchedFlowIDs {
		return f, true
	}
	return 0, false
}
