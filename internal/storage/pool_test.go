package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/strata/internal/lvm"
	"github.com/jbweber/strata/internal/lvm/lvmtest"
)

func TestNewPool(t *testing.T) {
	fake := lvmtest.New()
	cache := lvm.NewCache(fake, lvm.WithCacheElevation(false))
	dispatcher := lvm.NewDispatcher(context.Background(), fake, lvm.WithElevation(false))

	tests := []struct {
		name    string
		cfg     PoolConfig
		opts    []Option
		wantErr string
	}{
		{
			name: "valid",
			cfg:  PoolConfig{Name: "lvm", VolumeGroup: "vg0", ThinPool: "pool00", RevisionsToKeep: 1},
			opts: []Option{WithDispatcher(dispatcher), WithCache(cache)},
		},
		{
			name:    "missing volume group",
			cfg:     PoolConfig{ThinPool: "pool00"},
			opts:    []Option{WithDispatcher(dispatcher), WithCache(cache)},
			wantErr: "volume group is required",
		},
		{
			name:    "missing thin pool",
			cfg:     PoolConfig{VolumeGroup: "vg0"},
			opts:    []Option{WithDispatcher(dispatcher), WithCache(cache)},
			wantErr: "thin pool is required",
		},
		{
			name:    "negative revisions",
			cfg:     PoolConfig{VolumeGroup: "vg0", ThinPool: "pool00", RevisionsToKeep: -1},
			opts:    []Option{WithDispatcher(dispatcher), WithCache(cache)},
			wantErr: "revisions_to_keep must be non-negative",
		},
		{
			name:    "no dispatcher",
			cfg:     PoolConfig{VolumeGroup: "vg0", ThinPool: "pool00"},
			opts:    []Option{WithCache(cache)},
			wantErr: "dispatcher is required",
		},
		{
			name:    "no cache",
			cfg:     PoolConfig{VolumeGroup: "vg0", ThinPool: "pool00"},
			opts:    []Option{WithDispatcher(dispatcher)},
			wantErr: "cache is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.cfg, tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "vg0/pool00", pool.ID())
			assert.NoError(t, pool.Destroy())
		})
	}
}

func TestPool_Setup(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*lvmtest.FakeLVM)
		wantErr error
	}{
		{
			name:  "thin pool present",
			setup: func(f *lvmtest.FakeLVM) { f.AddThinPool("vg0", "pool00", 1<<30) },
		},
		{
			name:    "thin pool missing",
			setup:   func(f *lvmtest.FakeLVM) {},
			wantErr: ErrPoolNotFound,
		},
		{
			name: "not a thin pool",
			setup: func(f *lvmtest.FakeLVM) {
				f.AddVolume("vg0/pool00", lvmtest.LV{Size: 1 << 30, Attr: "-wi-a-----"})
			},
			wantErr: ErrNotThinPool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := lvmtest.New()
			tt.setup(fake)

			pool, err := NewPool(
				PoolConfig{Name: "lvm", VolumeGroup: "vg0", ThinPool: "pool00"},
				WithDispatcher(lvm.NewDispatcher(context.Background(), fake, lvm.WithElevation(false))),
				WithCache(lvm.NewCache(fake, lvm.WithCacheElevation(false))),
			)
			require.NoError(t, err)

			err = pool.Setup(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsFault(err))
			assert.Contains(t, err.Error(), "vg0/pool00")
		})
	}
}

func TestPool_Setup_QueryFailure(t *testing.T) {
	fake := lvmtest.New()
	fake.FailWhen("  Volume group \"vg0\" not found", "lvs")

	pool, err := NewPool(
		PoolConfig{Name: "lvm", VolumeGroup: "vg0", ThinPool: "pool00"},
		WithDispatcher(lvm.NewDispatcher(context.Background(), fake, lvm.WithElevation(false))),
		WithCache(lvm.NewCache(fake, lvm.WithCacheElevation(false))),
	)
	require.NoError(t, err)

	err = pool.Setup(context.Background())
	require.Error(t, err)
	assert.True(t, IsFault(err))
	assert.True(t, lvm.IsCommandError(err))
	assert.Contains(t, err.Error(), `Volume group "vg0" not found`)
}

func TestPool_SizeUsage(t *testing.T) {
	env := newTestEnv(t, 1)
	env.fake.SetPercent("vg0/pool00", 25)
	require.NoError(t, env.pool.Refresh(context.Background()))

	assert.Equal(t, int64(100<<30), env.pool.Size())
	assert.Equal(t, int64(25<<30), env.pool.Usage())

	other, err := NewPool(PoolConfig{Name: "x", VolumeGroup: "vg9", ThinPool: "nope"},
		WithDispatcher(env.dispatcher), WithCache(env.cache))
	require.NoError(t, err)
	assert.Zero(t, other.Size())
	assert.Zero(t, other.Usage())
}

func TestPool_InitVolume(t *testing.T) {
	env := newTestEnv(t, 2)

	tests := []struct {
		name     string
		vmName   string
		cfg      VolumeConfig
		wantVID  string
		wantKeep int
		wantErr  error
	}{
		{
			name:     "vid from vm name",
			vmName:   "work",
			cfg:      VolumeConfig{Name: "private", Size: testSize, RW: true, SaveOnStop: true},
			wantVID:  "vg0/vm-work-private",
			wantKeep: 2,
		},
		{
			name:     "explicit vid and revisions",
			vmName:   "work",
			cfg:      VolumeConfig{Name: "root", VID: "vg0/custom", SaveOnStop: true, RevisionsToKeep: lo.ToPtr(0)},
			wantVID:  "vg0/custom",
			wantKeep: 0,
		},
		{
			name:    "both snapshot flags",
			vmName:  "work",
			cfg:     VolumeConfig{Name: "root", SnapOnStart: true, SaveOnStop: true},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative revisions",
			vmName:  "work",
			cfg:     VolumeConfig{Name: "root", RevisionsToKeep: lo.ToPtr(-1)},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "missing name",
			vmName:  "work",
			cfg:     VolumeConfig{},
			wantErr: ErrVolumeNameMissing,
		},
		{
			name:    "vid in another volume group",
			vmName:  "work",
			cfg:     VolumeConfig{Name: "root", VID: "vg1/vm-work-root"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := env.pool.InitVolume(tt.vmName, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVID, v.VID())
			assert.Equal(t, tt.wantKeep, *v.Config().RevisionsToKeep)
			assert.Equal(t, DefaultDevType, v.Config().DevType)
			assert.Same(t, v, env.pool.GetVolume(tt.wantVID))
		})
	}
}

func TestPool_InitVolume_AnonymousOwner(t *testing.T) {
	env := newTestEnv(t, 1)

	a, err := env.pool.InitVolume("", VolumeConfig{Name: "root"})
	require.NoError(t, err)
	b, err := env.pool.InitVolume("", VolumeConfig{Name: "root"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.VID(), "vg0/vm-anon-"))
	assert.True(t, strings.HasSuffix(a.VID(), "-root"))
	assert.NotEqual(t, a.VID(), b.VID())
}

func TestPool_InitVolume_RequiresName(t *testing.T) {
	env := newTestEnv(t, 1)
	pool := env.newPool(t, "", testVG, testPool, 1)

	_, err := pool.InitVolume("work", VolumeConfig{Name: "root"})
	assert.True(t, errors.Is(err, ErrPoolNameRequired))
}

func TestPool_GetVolume_Unregistered(t *testing.T) {
	env := newTestEnv(t, 1)
	env.fake.AddVolume("vg0/vm-old-root-3.1700000000", lvmtest.LV{Size: 5 << 20, PoolLV: testPool, Attr: "Vwi-a-tz--"})
	require.NoError(t, env.pool.Refresh(context.Background()))

	v := env.pool.GetVolume("vg0/vm-old-root")
	assert.Equal(t, "vg0/vm-old-root", v.VID())
	assert.Equal(t, int64(5<<20), v.Size())
	assert.False(t, v.RW())
	assert.Equal(t, "/dev/vg0/vm-old-root-3.1700000000", v.Path())

	assert.NotSame(t, v, env.pool.GetVolume("vg0/vm-old-root"))
}

func TestPool_ListVolumes(t *testing.T) {
	env := newTestEnv(t, 1)
	thin := func() lvmtest.LV { return lvmtest.LV{Size: 1 << 20, PoolLV: testPool, Attr: "Vwi-a-tz--"} }

	env.fake.AddVolume("vg0/vm-a-root-1.100", thin())
	env.fake.AddVolume("vg0/vm-a-root-2.200", thin())
	env.fake.AddVolume("vg0/vm-a-root-snap", thin())
	env.fake.AddVolume("vg0/vm-a-root-1.50-back", thin())
	env.fake.AddVolume("vg0/vm-b-volatile", thin())
	env.fake.AddVolume("vg0/vm-c-private-import", thin())
	env.fake.AddVolume("vg0/vm-d-legacy", thin())
	env.fake.AddVolume("vg0/unrelated", lvmtest.LV{Size: 1 << 20, Attr: "-wi-a-----"})
	env.fake.AddVolume("vg1/vm-e-root", lvmtest.LV{Size: 1 << 20, PoolLV: testPool, Attr: "Vwi-a-tz--"})
	require.NoError(t, env.pool.Refresh(context.Background()))

	vids := lo.Map(env.pool.ListVolumes(), func(v *Volume, _ int) string { return v.VID() })
	assert.Equal(t, []string{"vg0/vm-a-root", "vg0/vm-b-volatile", "vg0/vm-d-legacy"}, vids)
}

func TestPool_Stats(t *testing.T) {
	env := newTestEnv(t, 1)
	v := env.persistent(t, "a", "private")
	require.NoError(t, v.Create(context.Background()))

	env.fake.SetPercent(v.currentName(), 50)
	require.NoError(t, env.pool.Refresh(context.Background()))

	stats := env.pool.Stats()
	assert.Equal(t, "vg0/pool00", stats.ID)
	require.Len(t, stats.Volumes, 1)
	assert.Equal(t, "vg0/vm-a-private", stats.Volumes[0].VID)
	assert.Equal(t, testSize, stats.Volumes[0].Size)
	assert.Equal(t, testSize/2, stats.Volumes[0].Usage)
}
