package storage

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/jbweber/strata/internal/locking"
	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/naming"
	"github.com/jbweber/strata/internal/revision"
)

// Volume is a thin volume family rooted at one vid.
type Volume struct {
	pool *Pool
	log  logger.Logger

	vid       string
	vidSnap   string
	vidImport string

	current *naming.RevisionMatcher
	all     *naming.RevisionMatcher

	name            string
	rw              bool
	snapOnStart     bool
	saveOnStop      bool
	source          *Volume
	revisionsToKeep int
	script          string
	domain          string
	devType         string

	mu   sync.Mutex
	size int64
}

func newVolume(p *Pool, vid string) *Volume {
	return &Volume{
		pool:      p,
		log:       logger.AddContext(p.log, logger.Ctx{"vid": vid}),
		vid:       vid,
		vidSnap:   naming.Snap(vid),
		vidImport: naming.Import(vid),
		current:   naming.NewRevisionMatcher(vid, false),
		all:       naming.NewRevisionMatcher(vid, true),
	}
}

// VID returns the volume id.
func (v *Volume) VID() string { return v.vid }

// Name returns the volume name within its VM.
func (v *Volume) Name() string { return v.name }

// Pool returns the pool the volume lives in.
func (v *Volume) Pool() *Pool { return v.pool }

// Source returns the volume this one is cloned or snapshotted from, if any.
func (v *Volume) Source() *Volume { return v.source }

// RW reports whether the VM may write to the volume.
func (v *Volume) RW() bool { return v.rw }

// SnapOnStart reports whether Start snapshots the volume.
func (v *Volume) SnapOnStart() bool { return v.snapOnStart }

// SaveOnStop reports whether Stop commits a new revision.
func (v *Volume) SaveOnStop() bool { return v.saveOnStop }

// Volatile reports whether the volume is recreated empty on every start.
func (v *Volume) Volatile() bool { return !v.snapOnStart && !v.saveOnStop }

// Config returns the declaration the volume was built from.
func (v *Volume) Config() VolumeConfig {
	keep := v.revisionsToKeep
	return VolumeConfig{
		Name:            v.name,
		VID:             v.vid,
		Size:            v.storedSize(),
		RW:              v.rw,
		SnapOnStart:     v.snapOnStart,
		SaveOnStop:      v.saveOnStop,
		Source:          v.source,
		RevisionsToKeep: &keep,
		Script:          v.script,
		Domain:          v.domain,
		DevType:         v.devType,
	}
}

// Path returns the device node of the current revision.
func (v *Volume) Path() string {
	return naming.DevPath(v.currentName())
}

// currentName returns the lv name of the newest revision, or the bare vid
// when there is none.
func (v *Volume) currentName() string {
	ids := v.revisionIDs(v.current)
	if len(ids) == 0 {
		return v.vid
	}
	return naming.Revision(v.vid, revision.Latest(ids))
}

func (v *Volume) revisionIDs(m *naming.RevisionMatcher) []string {
	return lo.FilterMap(v.pool.cache.Names(), func(name string, _ int) (string, bool) {
		return m.Match(name)
	})
}

// olderRevisions returns every revision id, backups included, except the current one.
func (v *Volume) olderRevisions() []string {
	current := v.currentName()
	return lo.Filter(v.revisionIDs(v.all), func(id string, _ int) bool {
		return naming.Revision(v.vid, id) != current
	})
}

func (v *Volume) nextRevisionName() string {
	next := revision.Next(v.revisionIDs(v.all))
	return naming.Revision(v.vid, revision.Format(next, v.pool.now()))
}

func (v *Volume) exists(name string) bool {
	return v.pool.cache.Has(name)
}

func (v *Volume) storedSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// Size returns the size of the snapshot when dirty, else of the current
// revision, else the declared size.
func (v *Volume) Size() int64 {
	if v.IsDirty() {
		if entry, ok := v.pool.cache.Get(v.vidSnap); ok {
			return entry.Size
		}
	}
	if entry, ok := v.pool.cache.Get(v.currentName()); ok {
		return entry.Size
	}
	return v.storedSize()
}

// SetSize always fails. Use Resize.
func (v *Volume) SetSize(int64) error {
	return fault("set-size", v.vid, ErrSizeImmutable)
}

// Usage returns the bytes allocated to the current revision.
func (v *Volume) Usage() int64 {
	entry, ok := v.pool.cache.Get(v.currentName())
	if !ok {
		return 0
	}
	return entry.Usage
}

// IsDirty reports whether a persistent volume has an uncommitted snapshot.
func (v *Volume) IsDirty() bool {
	return v.saveOnStop && v.exists(v.vidSnap)
}

// IsOutdated reports whether the snapshot was taken from a revision of the
// source that is no longer current.
func (v *Volume) IsOutdated() bool {
	if !v.snapOnStart {
		return false
	}
	snap, ok := v.pool.cache.Get(v.vidSnap)
	if !ok {
		return false
	}
	origin := v.currentName()
	if v.source != nil {
		origin = v.source.currentName()
	}
	return snap.Origin != naming.LVName(origin)
}

// Exists reports whether the current revision, or the bare volume, is present.
func (v *Volume) Exists() bool {
	return v.exists(v.currentName())
}

// HasSnapshot reports whether the running snapshot is present.
func (v *Volume) HasSnapshot() bool {
	return v.exists(v.vidSnap)
}

// ImportInProgress reports whether an import staging volume exists.
func (v *Volume) ImportInProgress() bool {
	return v.exists(v.vidImport)
}

// Revisions returns the creation time of every revision except the current one.
func (v *Volume) Revisions() map[string]time.Time {
	revs := map[string]time.Time{}
	for _, id := range v.olderRevisions() {
		t, err := revision.Created(id)
		if err != nil {
			continue
		}
		revs[id] = t
	}
	return revs
}

// RevisionTimes is Revisions with times rendered as ISO 8601 UTC.
func (v *Volume) RevisionTimes() map[string]string {
	return lo.MapValues(v.Revisions(), func(t time.Time, _ string) string {
		return revision.ISODate(t)
	})
}

// BlockDevice returns the device a VM should attach.
func (v *Volume) BlockDevice() BlockDevice {
	path := v.Path()
	if v.snapOnStart || v.saveOnStop {
		path = naming.DevPath(v.vidSnap)
	}
	return BlockDevice{
		Path:    path,
		Name:    v.name,
		Script:  v.script,
		RW:      v.rw,
		Domain:  v.domain,
		DevType: v.devType,
	}
}

// Verify checks that the volume a VM would start from exists and is active.
func (v *Volume) Verify(ctx context.Context) error {
	if v.Volatile() {
		return nil
	}

	name := v.currentName()
	if v.source != nil {
		name = v.source.currentName()
	}

	entry, ok := v.pool.cache.Get(name)
	if !ok {
		return fault("verify", name, ErrMissing)
	}
	if !entry.Attrs().IsActive() {
		return fault("verify", name, ErrNotActive)
	}
	return nil
}

// Export activates the current revision and returns its device node.
func (v *Volume) Export(ctx context.Context) (string, error) {
	name := v.currentName()
	if err := v.pool.dispatcher.Activate(ctx, name); err != nil {
		return "", fault("export", v.vid, err)
	}
	return naming.DevPath(name), nil
}

func (v *Volume) lock(ctx context.Context) (locking.UnlockFunc, error) {
	return locking.Lock(ctx, "volume/"+v.vid)
}

// refresh re-reads lvm state even when ctx is already cancelled.
func (v *Volume) refresh(ctx context.Context) error {
	return v.pool.Refresh(context.WithoutCancel(ctx))
}

// refreshAfter is deferred by mutating operations. A refresh failure is
// only reported when the operation itself succeeded.
func (v *Volume) refreshAfter(ctx context.Context, op string, err *error) {
	rerr := v.refresh(ctx)
	if rerr != nil && *err == nil {
		*err = fault(op, v.vid, rerr)
	}
}

// removeQuietly removes name if it exists, logging failures.
func (v *Volume) removeQuietly(ctx context.Context, name string) {
	if !v.exists(name) {
		return
	}
	if err := v.pool.dispatcher.Remove(ctx, name); err != nil {
		v.log.Warn("Failed to remove logical volume", logger.Ctx{"name": name, "err": err})
	}
}

func (v *Volume) observe(op string, err error) {
	v.pool.recorder.ObserveOperation(op, err)
}
