package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/revision"
)

// commitLocked turns name (the snapshot when empty) into the new current
// revision and prunes old revisions. With keep set, name is cloned and left
// in place; otherwise it is renamed. The volume lock must be held.
func (v *Volume) commitLocked(ctx context.Context, name string, keep bool) (err error) {
	start := time.Now()
	defer func() { v.pool.recorder.ObserveCommit(time.Since(start), err) }()

	if !v.saveOnStop || !v.rw {
		err := fmt.Errorf("commit %s: %w: volume must be rw and save_on_stop", v.vid, ErrPrecondition)
		v.log.Error("Refusing to commit", logger.Ctx{"err": err})
		return err
	}

	if name == "" {
		name = v.vidSnap
	}
	if !v.exists(name) {
		v.log.Debug("Nothing to commit", logger.Ctx{"name": name})
		return nil
	}

	if v.currentName() == v.vid && v.exists(v.vid) {
		migrated := v.nextRevisionName()
		if err := v.pool.dispatcher.Rename(ctx, v.vid, migrated); err != nil {
			return fault("commit", v.vid, err)
		}
		if err := v.refresh(ctx); err != nil {
			return fault("commit", v.vid, err)
		}
		v.log.Info("Migrated volume to revision naming", logger.Ctx{"revision": migrated})
	}

	next := v.nextRevisionName()
	if keep {
		err = v.pool.dispatcher.Clone(ctx, name, next)
	} else {
		err = v.pool.dispatcher.Rename(ctx, name, next)
	}
	if err != nil {
		return fault("commit", v.vid, err)
	}

	if err := v.refresh(ctx); err != nil {
		return fault("commit", v.vid, err)
	}
	if current := v.currentName(); current != next {
		err := fmt.Errorf("commit %s: %w: current revision is %s, expected %s", v.vid, ErrInconsistent, current, next)
		v.log.Error("Commit did not produce the current revision", logger.Ctx{"err": err})
		return err
	}

	older := v.olderRevisions()
	revision.Sort(older)
	if len(older) > v.revisionsToKeep {
		v.removeRevisions(ctx, older[:len(older)-v.revisionsToKeep])
		if err := v.refresh(ctx); err != nil {
			return fault("commit", v.vid, err)
		}
	}

	v.log.Info("Committed volume", logger.Ctx{"revision": next, "from": name})
	return nil
}
