package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/jbweber/strata/internal/config"
	"github.com/jbweber/strata/internal/copier"
	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/lvm"
	"github.com/jbweber/strata/internal/metrics"
	"github.com/jbweber/strata/internal/storage"
	"github.com/jbweber/strata/internal/vm"
)

// runtime wires the configured pools and volumes onto one lvm runner.
type runtime struct {
	cfg      *config.File
	registry *prometheus.Registry
	recorder *metrics.Recorder
	cache    *lvm.Cache
	pools    map[string]*storage.Pool
	volumes  map[string]*storage.Volume // keyed by "vm:volume"
}

// newRuntime builds pools and declares every configured volume. The lvm
// state is not read; call refresh or setup before querying.
func newRuntime(ctx context.Context, cfg *config.File, runner lvm.Runner) (*runtime, error) {
	elevate := lo.FromPtrOr(cfg.LVM.Sudo, lvm.NeedsElevation())

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	cache := lvm.NewCache(runner, lvm.WithCacheElevation(elevate))
	dispatcher := lvm.NewDispatcher(ctx, runner,
		lvm.WithElevation(elevate),
		lvm.WithObserver(recorder),
	)
	dd := copier.NewDD(runner)

	rt := &runtime{
		cfg:      cfg,
		registry: registry,
		recorder: recorder,
		cache:    cache,
		pools:    map[string]*storage.Pool{},
		volumes:  map[string]*storage.Volume{},
	}

	for _, pc := range cfg.Pools {
		pool, err := storage.NewPool(storage.PoolConfig{
			Name:            pc.Name,
			VolumeGroup:     pc.VolumeGroup,
			ThinPool:        pc.ThinPool,
			RevisionsToKeep: lo.FromPtrOr(pc.RevisionsToKeep, config.DefaultRevisionsToKeep),
		},
			storage.WithDispatcher(dispatcher),
			storage.WithCache(cache),
			storage.WithCopier(dd),
			storage.WithRecorder(recorder),
			storage.WithLogger(logger.Log),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure pool %s: %w", pc.Name, err)
		}
		rt.pools[pc.Name] = pool
	}

	for i := range cfg.Volumes {
		if _, err := rt.declare(cfg.Volumes[i].Ref(), map[string]bool{}); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

// declare initializes the volume for ref, declaring its source first.
func (rt *runtime) declare(ref string, visiting map[string]bool) (*storage.Volume, error) {
	if v, ok := rt.volumes[ref]; ok {
		return v, nil
	}
	if visiting[ref] {
		return nil, fmt.Errorf("volume %s is part of a source cycle", ref)
	}
	visiting[ref] = true

	decl, ok := rt.cfg.Volume(ref)
	if !ok {
		return nil, fmt.Errorf("volume %s is not declared", ref)
	}
	pool, ok := rt.pools[decl.Pool]
	if !ok {
		return nil, fmt.Errorf("volume %s: unknown pool %s", ref, decl.Pool)
	}

	var source *storage.Volume
	if decl.Source != "" {
		src, err := rt.declare(decl.Source, visiting)
		if err != nil {
			return nil, err
		}
		source = src
	}

	size, err := decl.SizeBytes()
	if err != nil {
		return nil, fmt.Errorf("volume %s: %w", ref, err)
	}

	v, err := pool.InitVolume(decl.VM, storage.VolumeConfig{
		Name:            decl.Name,
		VID:             decl.VID,
		Size:            size,
		RW:              decl.IsRW(),
		SnapOnStart:     decl.SnapOnStart,
		SaveOnStop:      decl.SaveOnStop,
		Source:          source,
		RevisionsToKeep: decl.RevisionsToKeep,
		Script:          decl.Script,
		Domain:          decl.Domain,
		DevType:         decl.DevType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare volume %s: %w", ref, err)
	}

	rt.volumes[ref] = v
	return v, nil
}

// refresh reloads the shared lvm state.
func (rt *runtime) refresh(ctx context.Context) error {
	if err := rt.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to query lvm: %w", err)
	}
	return nil
}

// pool returns the named pool.
func (rt *runtime) pool(name string) (*storage.Pool, error) {
	p, ok := rt.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool %s is not configured", name)
	}
	return p, nil
}

// poolNames returns the configured pool names, or just the given ones.
func (rt *runtime) poolNames(names []string) []string {
	if len(names) > 0 {
		return names
	}
	out := lo.Keys(rt.pools)
	sort.Strings(out)
	return out
}

// volume returns the declared volume for a "vm:volume" reference.
func (rt *runtime) volume(ref string) (*storage.Volume, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if _, _, err := config.ParseVolumeRef(ref); err != nil {
		return nil, err
	}
	v, ok := rt.volumes[ref]
	if !ok {
		return nil, fmt.Errorf("volume %s is not declared", ref)
	}
	return v, nil
}

// vm returns the storage of every volume declared for vmName.
func (rt *runtime) vm(vmName string) (*vm.Storage, error) {
	decls := rt.cfg.VMVolumes(vmName)
	if len(decls) == 0 {
		return nil, fmt.Errorf("no volumes declared for vm %s", vmName)
	}
	volumes := lo.Map(decls, func(d *config.VolumeDecl, _ int) *storage.Volume {
		return rt.volumes[d.Ref()]
	})
	return vm.New(vmName, volumes...), nil
}

// lvmRunner spawns the lvm binaries.
var lvmRunner lvm.Runner = lvm.ExecRunner{}

// loadRuntime builds a runtime over lvmRunner and reads the current lvm state.
func loadRuntime(ctx context.Context) (*runtime, error) {
	rt, err := newRuntime(ctx, cfg, lvmRunner)
	if err != nil {
		return nil, err
	}
	if err := rt.refresh(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}
