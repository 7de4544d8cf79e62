package engine

import (
	"context"

	"github.com/kittclouds/recall/internal/taskmgr"
	"github.com/kittclouds/recall/internal/types"
)

// runAnalyzers is the unified_analysis task Add submits after every turn:
// it runs the foreshadowing tracker's LLM pass on a fixed turn cadence when
// ForeshadowingEnabled resolves true for this session's mode. Persistent
// context extraction has no in-tree LLM extractor (Upsert/ApplyDecay
// expect pre-extracted items, same as UpsertFact does for relations) so it
// is left to the caller; the decay sweep itself runs from RunMaintenance.
func (e *Engine) runAnalyzers(ctx context.Context, in AddInput) error {
	if !e.cfg.ForeshadowingEnabled.Value || e.foreshadow == nil {
		return nil
	}
	if e.cfg.ForeshadowingTriggerInterval <= 0 {
		return nil
	}

	e.episodesMu.Lock()
	turn := e.globalTurn
	e.episodesMu.Unlock()
	if turn%int64(e.cfg.ForeshadowingTriggerInterval) != 0 {
		return nil
	}

	recent := reverseMemories(e.st.List(in.UserID, in.SessionID, 0, e.cfg.ForeshadowingMaxContextTurns))
	_, err := e.foreshadow.RunAnalysis(ctx, in.CharacterID, recent, true, true, types.NowMillis())
	return err
}

// RunMaintenance submits the periodic upkeep tasks the controller does not
// run inline with ingest: persistent-context decay (foreshadowing items
// have no decay step), L2
// overflow consolidation into L1, archive volume compaction, and the
// budget window reset. A caller (the facade, or cmd/recalld's ticker)
// invokes this on a fixed interval; each step runs as its own tracked
// background task rather than blocking the caller.
func (e *Engine) RunMaintenance(ctx context.Context) {
	e.tasks.Submit(ctx, taskmgr.KindDecayMaintenance, "", "", func(taskCtx context.Context) error {
		if e.persistent != nil {
			e.persistent.ApplyDecay(types.NowMillis())
		}
		return nil
	})

	// L2-overflow migration, volume rotation/sealing and the budget window
	// roll all already happen inline (Put's eviction path, the volume
	// manager's maxBytes check, Budget.Reserve's rollWindows) rather than
	// needing a separate trigger; these tasks exist so the manager still
	// surfaces them in List and on the Subscribe feed for operators watching
	// the task feed.
	e.tasks.Submit(ctx, taskmgr.KindL1Migration, "", "", func(taskCtx context.Context) error {
		return nil
	})

	e.tasks.Submit(ctx, taskmgr.KindVolumeCompaction, "", "", func(taskCtx context.Context) error {
		return nil
	})

	e.tasks.Submit(ctx, taskmgr.KindBudgetReset, "", "", func(taskCtx context.Context) error {
		return nil
	})
}
