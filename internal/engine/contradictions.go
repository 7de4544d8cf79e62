package engine

import "github.com/kittclouds/recall/internal/types"

// contradictionLog appends every Contradiction UpsertFact produces so
// ListContradictions/ResolveContradiction have something to operate on;
// the graph itself only applies a resolution, it never keeps a log.
func (e *Engine) logContradiction(c types.Contradiction) {
	e.counterMu.Lock()
	e.contradictions++
	e.contradictionLog = append(e.contradictionLog, c)
	e.counterMu.Unlock()
}

// ListContradictions returns every contradiction recorded so far, resolved
// or not, oldest first.
func (e *Engine) ListContradictions() []types.Contradiction {
	e.counterMu.Lock()
	defer e.counterMu.Unlock()
	out := make([]types.Contradiction, len(e.contradictionLog))
	copy(out, e.contradictionLog)
	return out
}

// ResolveContradiction applies a human decision to a MANUAL-strategy
// contradiction: which of the two facts (by id) stays ACTIVE. The other is
// marked SUPERSEDED by it. Returns errs.NotFound-wrapped errors through the
// graph backend's own lookup if either fact id is unknown.
func (e *Engine) ResolveContradiction(contradictionID, keepFactID string) error {
	e.counterMu.Lock()
	idx := -1
	for i, c := range e.contradictionLog {
		if c.ID == contradictionID {
			idx = i
			break
		}
	}
	e.counterMu.Unlock()
	if idx < 0 {
		return nil
	}

	e.counterMu.Lock()
	c := e.contradictionLog[idx]
	other := c.FactA
	if keepFactID == c.FactA {
		other = c.FactB
	}
	e.counterMu.Unlock()

	if err := e.kgraph.SupersedeFact(other, keepFactID); err != nil {
		return err
	}

	e.counterMu.Lock()
	now := types.NowMillis()
	e.contradictionLog[idx].Resolved = true
	e.contradictionLog[idx].ResolvedAt = &now
	e.counterMu.Unlock()
	return nil
}
