// Package storage manages VM volumes on an LVM thin pool.
//
// Storage Architecture:
//
// A Pool wraps one thin pool ({vg}/{thin_pool}) and hands out Volume
// objects. Every Volume is a family of logical volumes sharing the vid
// prefix (see internal/naming):
//   - {vid}-{n}.{ts}: committed revisions; the newest one is current
//   - {vid}-snap: snapshot the VM writes to while running
//   - {vid}-import: staging volume of an import in progress
//
// Volume Variants:
//
// The snap_on_start and save_on_stop flags select the behaviour of
// Start and Stop:
//   - neither: volatile, recreated empty on every start
//   - save_on_stop: persistent, the snapshot becomes a new revision on stop
//   - snap_on_start: a throwaway snapshot of the source volume
//
// Setting both is rejected.
//
// State:
//
// The only state is what lvm reports. It is read through a shared
// *lvm.Cache which every mutating operation refreshes afterwards.
//
// Example usage:
//
//	runner := lvm.ExecRunner{}
//	cache := lvm.NewCache(runner)
//	pool, err := storage.NewPool(storage.PoolConfig{
//	    Name:            "lvm",
//	    VolumeGroup:     "qubes_dom0",
//	    ThinPool:        "pool00",
//	    RevisionsToKeep: 1,
//	},
//	    storage.WithDispatcher(lvm.NewDispatcher(ctx, runner)),
//	    storage.WithCache(cache),
//	    storage.WithCopier(copier.NewDD(runner)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := pool.Setup(ctx); err != nil {
//	    return err
//	}
//
//	vol, err := pool.InitVolume("work", storage.VolumeConfig{
//	    Name:       "private",
//	    Size:       2 << 30,
//	    RW:         true,
//	    SaveOnStop: true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := vol.Create(ctx); err != nil {
//	    return err
//	}
package storage
