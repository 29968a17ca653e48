package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/lvm"
	"github.com/jbweber/strata/internal/metrics"
	"github.com/jbweber/strata/internal/naming"
)

// Dispatcher is the subset of lvm.Dispatcher used by pools and volumes.
type Dispatcher interface {
	Create(ctx context.Context, poolID, name string, size int64) error
	Clone(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	Extend(ctx context.Context, name string, size int64) error
	Activate(ctx context.Context, name string) error
}

// Copier copies the content of one block device onto another.
type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}

// Recorder receives operation outcomes. *metrics.Recorder satisfies it.
type Recorder interface {
	ObserveOperation(op string, err error)
	ObserveCommit(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error) {}
func (nopRecorder) ObserveCommit(time.Duration, error) {}

// Option configures a Pool.
type Option func(*Pool)

// WithDispatcher sets the lvm command dispatcher. Required.
func WithDispatcher(d Dispatcher) Option {
	return func(p *Pool) { p.dispatcher = d }
}

// WithCache sets the lvm state cache. Required.
func WithCache(c *lvm.Cache) Option {
	return func(p *Pool) { p.cache = c }
}

// WithCopier sets the copier used by cross-pool imports.
func WithCopier(c Copier) Option {
	return func(p *Pool) { p.copier = c }
}

// WithClock overrides time.Now for revision timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithLogger sets the pool logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) { p.recorder = r }
}

// Pool is an LVM thin pool and the registry of volumes initialized on it.
type Pool struct {
	cfg        PoolConfig
	dispatcher Dispatcher
	cache      *lvm.Cache
	copier     Copier
	now        func() time.Time
	log        logger.Logger
	recorder   Recorder

	mu      sync.Mutex
	volumes map[string]*Volume
}

// NewPool creates a pool. It does not touch lvm; call Setup to validate it.
func NewPool(cfg PoolConfig, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	p := &Pool{
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Log,
		recorder: nopRecorder{},
		volumes:  map[string]*Volume{},
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.dispatcher == nil {
		return nil, fmt.Errorf("pool %s: dispatcher is required", p.ID())
	}
	if p.cache == nil {
		return nil, fmt.Errorf("pool %s: cache is required", p.ID())
	}

	p.log = logger.AddContext(p.log, logger.Ctx{"pool": p.ID()})
	return p, nil
}

// Name returns the configured pool name.
func (p *Pool) Name() string { return p.cfg.Name }

// VolumeGroup returns the volume group of the pool.
func (p *Pool) VolumeGroup() string { return p.cfg.VolumeGroup }

// ThinPool returns the thin pool logical volume name.
func (p *Pool) ThinPool() string { return p.cfg.ThinPool }

// RevisionsToKeep returns the default number of retained revisions.
func (p *Pool) RevisionsToKeep() int { return p.cfg.RevisionsToKeep }

// ID returns "{vg}/{thin_pool}".
func (p *Pool) ID() string {
	return naming.PoolID(p.cfg.VolumeGroup, p.cfg.ThinPool)
}

// Config returns the pool configuration.
func (p *Pool) Config() PoolConfig { return p.cfg }

// Setup refreshes the cache and checks that the thin pool exists.
func (p *Pool) Setup(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return fault("setup", p.ID(), err)
	}

	entry, ok := p.cache.Get(p.ID())
	if !ok {
		return fault("setup", p.ID(), ErrPoolNotFound)
	}
	if !entry.Attrs().IsThinPool() {
		return fault("setup", p.ID(), ErrNotThinPool)
	}

	p.log.Debug("Thin pool ready", logger.Ctx{"size": entry.Size, "usage": entry.Usage})
	return nil
}

// Destroy is a no-op. Thin pools are never removed.
func (p *Pool) Destroy() error {
	return nil
}

// Refresh re-reads lvm state.
func (p *Pool) Refresh(ctx context.Context) error {
	return p.cache.Refresh(ctx)
}

// Size returns the thin pool size in bytes, or 0 if it is unknown.
func (p *Pool) Size() int64 {
	entry, ok := p.cache.Get(p.ID())
	if !ok {
		return 0
	}
	return entry.Size
}

// Usage returns the bytes allocated in the thin pool, or 0 if it is unknown.
func (p *Pool) Usage() int64 {
	entry, ok := p.cache.Get(p.ID())
	if !ok {
		return 0
	}
	return entry.Usage
}

// InitVolume builds a volume from cfg and registers it. An empty vmName
// gets a random owner name.
func (p *Pool) InitVolume(vmName string, cfg VolumeConfig) (*Volume, error) {
	if p.cfg.Name == "" {
		return nil, ErrPoolNameRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keep := p.cfg.RevisionsToKeep
	if cfg.RevisionsToKeep != nil {
		keep = *cfg.RevisionsToKeep
	}

	if cfg.VID == "" {
		if vmName == "" {
			vmName = "anon-" + uuid.NewString()
		}
		cfg.VID = naming.VID(p.cfg.VolumeGroup, vmName, cfg.Name)
	}
	if naming.VolumeGroup(cfg.VID) != p.cfg.VolumeGroup {
		return nil, fmt.Errorf("%w: vid %s is outside volume group %s", ErrInvalidConfig, cfg.VID, p.cfg.VolumeGroup)
	}

	// Volumes built from a source default to its declared size.
	if cfg.Size == 0 && cfg.Source != nil {
		cfg.Size = cfg.Source.storedSize()
	}

	devType := cfg.DevType
	if devType == "" {
		devType = DefaultDevType
	}

	v := newVolume(p, cfg.VID)
	v.name = cfg.Name
	v.size = cfg.Size
	v.rw = cfg.RW
	v.snapOnStart = cfg.SnapOnStart
	v.saveOnStop = cfg.SaveOnStop
	v.source = cfg.Source
	v.revisionsToKeep = keep
	v.script = cfg.Script
	v.domain = cfg.Domain
	v.devType = devType

	p.mu.Lock()
	p.volumes[v.vid] = v
	p.mu.Unlock()

	return v, nil
}

// GetVolume returns the registered volume for vid, or an unregistered
// read-only volatile view of it.
func (p *Pool) GetVolume(vid string) *Volume {
	p.mu.Lock()
	v, ok := p.volumes[vid]
	p.mu.Unlock()
	if ok {
		return v
	}

	v = newVolume(p, vid)
	v.name = strings.TrimPrefix(naming.LVName(vid), "vm-")
	v.revisionsToKeep = p.cfg.RevisionsToKeep
	v.devType = DefaultDevType
	if entry, ok := p.cache.Get(v.currentName()); ok {
		v.size = entry.Size
	}
	return v
}

// ListVolumes returns every volume family found in the thin pool, sorted by vid.
func (p *Pool) ListVolumes() []*Volume {
	prefix := p.cfg.VolumeGroup + "/"

	vids := lo.FilterMap(lo.Entries(p.cache.Snapshot()), func(e lo.Entry[string, lvm.Entry], _ int) (string, bool) {
		name := e.Key
		if !strings.HasPrefix(name, prefix) || e.Value.PoolLV != p.cfg.ThinPool {
			return "", false
		}
		if naming.IsStaging(name) || naming.IsBackup(name) {
			return "", false
		}
		return naming.BaseVID(name), true
	})

	vids = lo.Uniq(vids)
	sort.Strings(vids)

	return lo.Map(vids, func(vid string, _ int) *Volume {
		return p.GetVolume(vid)
	})
}

// Stats implements metrics.StatsSource.
func (p *Pool) Stats() metrics.PoolStats {
	return metrics.PoolStats{
		ID:    p.ID(),
		Size:  p.Size(),
		Usage: p.Usage(),
		Volumes: lo.Map(p.ListVolumes(), func(v *Volume, _ int) metrics.VolumeStats {
			return metrics.VolumeStats{VID: v.VID(), Size: v.Size(), Usage: v.Usage()}
		}),
	}
}

func (p *Pool) forget(vid string) {
	p.mu.Lock()
	delete(p.volumes, vid)
	p.mu.Unlock()
}
