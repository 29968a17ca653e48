package storage

import (
	"context"
	"fmt"

	"github.com/jbweber/strata/internal/copier"
	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/naming"
	"github.com/jbweber/strata/internal/revert"
)

// ImportTask is an import running in the background.
type ImportTask struct {
	VID  string
	task *copier.Task
}

// Wait blocks until the import finishes and returns its error.
func (t *ImportTask) Wait() error { return t.task.Wait() }

// Done is closed when the import has finished.
func (t *ImportTask) Done() <-chan struct{} { return t.task.Done() }

// Cancel stops the import. The staging volume is left in place.
func (t *ImportTask) Cancel() { t.task.Cancel() }

// StartImportVolume runs ImportVolume in the background.
func (v *Volume) StartImportVolume(ctx context.Context, src *Volume) *ImportTask {
	return &ImportTask{
		VID: v.vid,
		task: copier.Start(ctx, func(ctx context.Context) error {
			return v.ImportVolume(ctx, src)
		}),
	}
}

// ImportVolume replaces the content of the volume with the current
// revision of src. Within a thin pool this is a snapshot; across pools the
// data is copied block by block.
func (v *Volume) ImportVolume(ctx context.Context, src *Volume) (err error) {
	defer func() { v.observe("import", err) }()

	if !src.saveOnStop {
		return nil
	}

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "import", &err)

	if v.IsDirty() {
		return fault("import", v.vid, ErrDirty)
	}
	if v.ImportInProgress() {
		return fault("import", v.vid, ErrImportInProgress)
	}

	if sp := src.Pool(); sp.VolumeGroup() == v.pool.VolumeGroup() && sp.ThinPool() == v.pool.ThinPool() {
		return v.commitLocked(ctx, src.currentName(), true)
	}

	if v.pool.copier == nil {
		return fault("import", v.vid, ErrNoCopier)
	}

	reverter := revert.New()
	defer reverter.Fail()

	if err := v.pool.dispatcher.Create(ctx, v.pool.ID(), naming.LVName(v.vidImport), src.Size()); err != nil {
		return fault("import", v.vid, err)
	}
	reverter.Add(func() {
		cleanup := context.WithoutCancel(ctx)
		if err := v.pool.dispatcher.Remove(cleanup, v.vidImport); err != nil {
			v.log.Warn("Failed to remove import volume", logger.Ctx{"err": err})
		}
	})

	if err := v.refresh(ctx); err != nil {
		return fault("import", v.vid, err)
	}

	srcPath, err := src.Export(ctx)
	if err != nil {
		return fault("import", v.vid, err)
	}

	v.log.Info("Copying volume data", logger.Ctx{"src": srcPath})

	if err := v.pool.copier.Copy(ctx, srcPath, naming.DevPath(v.vidImport)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			reverter.Success()
			return fault("import", v.vid, ctxErr)
		}
		return fault("import", v.vid, fmt.Errorf("%w: %w", ErrCopyFailed, err))
	}

	reverter.Success()
	return v.commitLocked(ctx, v.vidImport, false)
}

// ImportData creates a staging volume for the caller to write into and
// returns its device node. Finish with ImportDataEnd.
func (v *Volume) ImportData(ctx context.Context) (path string, err error) {
	defer func() { v.observe("import-data", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "import-data", &err)

	if v.IsDirty() {
		return "", fault("import-data", v.vid, ErrDirty)
	}
	if v.ImportInProgress() {
		return "", fault("import-data", v.vid, ErrImportInProgress)
	}

	if err := v.pool.dispatcher.Create(ctx, v.pool.ID(), naming.LVName(v.vidImport), v.Size()); err != nil {
		return "", fault("import-data", v.vid, err)
	}

	return naming.DevPath(v.vidImport), nil
}

// ImportDataEnd commits the staging volume when success is set and
// discards it otherwise.
func (v *Volume) ImportDataEnd(ctx context.Context, success bool) (err error) {
	defer func() { v.observe("import-data-end", err) }()

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer v.refreshAfter(ctx, "import-data-end", &err)

	if !v.ImportInProgress() {
		return fmt.Errorf("import-data-end %s: %w: no import operation in progress", v.vid, ErrPrecondition)
	}

	if success {
		return v.commitLocked(ctx, v.vidImport, false)
	}

	if err := v.pool.dispatcher.Remove(ctx, v.vidImport); err != nil {
		return fault("import-data-end", v.vid, err)
	}
	return nil
}
