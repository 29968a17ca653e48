package storage

import (
	"context"
	"fmt"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/naming"
	"github.com/jbweber/strata/internal/revision"
)

// Create materializes the first revision of a persistent volume. Other
// variants are materialized by Start.
func (v *Volume) Create(ctx context.Context) (err error) {
	defer func() { v.observe("create", err) }()

	if v.vid == "" {
		return fmt.Errorf("create: %w: volume has no vid", ErrPrecondition)
	}
	if v.storedSize() <= 0 {
		return fmt.Errorf("create %s: %w: volume has no size", v.vid, ErrPrecondition)
	}

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if !v.saveOnStop {
		return nil
	}

	defer v.refreshAfter(ctx, "create", &err)

	name := naming.Revision(v.vid, revision.Format(1, v.pool.now()))
	if v.source != nil {
		err = v.pool.dispatcher.Clone(ctx, v.source.currentName(), name)
	} else {
		err = v.pool.dispatcher.Create(ctx, v.pool.ID(), naming.LVName(name), v.storedSize())
	}
	if err != nil {
		return fault("create", v.vid, err)
	}

	v.log.Info("Created volume", logger.Ctx{"revision": name})
	return nil
}

// Start prepares the volume for a running VM.
func (v *Volume) Start(ctx context.Context) (err error) {
	defer func() { v.observe("start", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "start", &err)

	if v.ImportInProgress() {
		return fault("start", v.vid, ErrImportInProgress)
	}

	if v.Volatile() {
		v.removeQuietly(ctx, v.vid)
		if err := v.pool.dispatcher.Create(ctx, v.pool.ID(), naming.LVName(v.vid), v.storedSize()); err != nil {
			return fault("start", v.vid, err)
		}
		return nil
	}

	if v.IsDirty() {
		v.log.Debug("Reusing uncommitted snapshot")
		return nil
	}

	v.removeQuietly(ctx, v.vidSnap)

	origin := v.currentName()
	if v.source != nil {
		origin = v.source.currentName()
	}
	if err := v.pool.dispatcher.Clone(ctx, origin, v.vidSnap); err != nil {
		return fault("start", v.vid, err)
	}

	return nil
}

// Stop commits or discards what the VM wrote, depending on the variant.
func (v *Volume) Stop(ctx context.Context) (err error) {
	defer func() { v.observe("stop", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "stop", &err)

	switch {
	case v.saveOnStop:
		return v.commitLocked(ctx, "", false)
	case v.snapOnStart:
		if v.exists(v.vidSnap) {
			if err := v.pool.dispatcher.Remove(ctx, v.vidSnap); err != nil {
				return fault("stop", v.vid, err)
			}
		}
	default:
		if v.exists(v.vid) {
			if err := v.pool.dispatcher.Remove(ctx, v.vid); err != nil {
				return fault("stop", v.vid, err)
			}
		}
	}

	return nil
}

// Resize grows the volume to size bytes. Shrinking is refused.
func (v *Volume) Resize(ctx context.Context, size int64) (err error) {
	defer func() { v.observe("resize", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "resize", &err)

	if !v.rw {
		return fault("resize", v.vid, ErrReadOnly)
	}

	current := v.Size()
	if size < current {
		return fault("resize", v.vid, fmt.Errorf("%w: %d < %d", ErrShrink, size, current))
	}
	if size == current {
		return nil
	}

	target := ""
	switch {
	case v.IsDirty():
		target = v.vidSnap
	case v.ImportInProgress():
		target = v.vidImport
	case v.saveOnStop || !v.snapOnStart:
		if name := v.currentName(); v.exists(name) {
			target = name
		}
	}

	if target != "" {
		if err := v.pool.dispatcher.Extend(ctx, target, size); err != nil {
			return fault("resize", v.vid, err)
		}
	}

	v.mu.Lock()
	v.size = size
	v.mu.Unlock()

	v.log.Info("Resized volume", logger.Ctx{"size": size, "target": target})
	return nil
}

// Revert makes a copy of an older revision the current one. An empty rev
// selects the newest older revision.
func (v *Volume) Revert(ctx context.Context, rev string) (err error) {
	defer func() { v.observe("revert", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "revert", &err)

	if v.IsDirty() {
		return fault("revert", v.vid, ErrDirty)
	}
	if v.ImportInProgress() {
		return fault("revert", v.vid, ErrImportInProgress)
	}

	if rev == "" {
		rev = revision.Latest(v.olderRevisions())
		if rev == "" {
			return fault("revert", v.vid, ErrRevisionNotFound)
		}
	}

	target := naming.Revision(v.vid, rev)
	if !v.exists(target) {
		return fault("revert", v.vid, fmt.Errorf("%w: %s", ErrRevisionNotFound, rev))
	}

	previous := v.currentName()
	name := v.nextRevisionName()

	if err := v.pool.dispatcher.Clone(ctx, target, name); err != nil {
		return fault("revert", v.vid, err)
	}
	if v.exists(previous) {
		if err := v.pool.dispatcher.Remove(ctx, previous); err != nil {
			return fault("revert", v.vid, err)
		}
	}

	v.log.Info("Reverted volume", logger.Ctx{"revision": rev, "current": name})
	return nil
}

// Remove deletes every logical volume of the family.
func (v *Volume) Remove(ctx context.Context) (err error) {
	defer func() { v.observe("remove", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "remove", &err)

	for _, name := range []string{v.vidSnap, v.vidImport} {
		if !v.exists(name) {
			continue
		}
		if err := v.pool.dispatcher.Remove(ctx, name); err != nil {
			return fault("remove", v.vid, err)
		}
	}

	v.removeRevisions(ctx, v.olderRevisions())

	current := v.currentName()
	if !v.exists(current) {
		return nil
	}

	if err := v.pool.dispatcher.Remove(ctx, current); err != nil {
		return fault("remove", v.vid, err)
	}

	v.pool.forget(v.vid)
	v.log.Info("Removed volume")
	return nil
}

// removeRevisions removes the given revision ids, logging failures.
func (v *Volume) removeRevisions(ctx context.Context, ids []string) {
	for _, id := range ids {
		name := naming.Revision(v.vid, id)
		if err := v.pool.dispatcher.Remove(ctx, name); err != nil {
			v.log.Warn("Failed to remove revision", logger.Ctx{"revision": id, "err": err})
		}
	}
}
