package storage

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/strata/internal/copier"
	"github.com/jbweber/strata/internal/lvm"
	"github.com/jbweber/strata/internal/lvm/lvmtest"
	"github.com/jbweber/strata/internal/naming"
	"github.com/jbweber/strata/internal/revision"
)

const (
	testVG   = "vg0"
	testPool = "pool00"
	testSize = int64(1 << 30)
)

// mockClock returns a strictly increasing time, one second per call.
type mockClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// mockCopier copies fake volume content between device nodes.
type mockCopier struct {
	fake *lvmtest.FakeLVM

	exitCode int
	block    bool

	once    sync.Once
	started chan struct{}

	mu    sync.Mutex
	calls [][2]string
}

func newMockCopier(fake *lvmtest.FakeLVM) *mockCopier {
	return &mockCopier{fake: fake, started: make(chan struct{})}
}

func (c *mockCopier) Copy(ctx context.Context, src, dst string) error {
	c.mu.Lock()
	c.calls = append(c.calls, [2]string{src, dst})
	c.mu.Unlock()

	if c.block {
		c.once.Do(func() { close(c.started) })
		<-ctx.Done()
		return ctx.Err()
	}
	if c.exitCode != 0 {
		return &copier.ExitError{Code: c.exitCode}
	}

	data, err := c.fake.Read(naming.FromDevPath(src))
	if err != nil {
		return err
	}
	return c.fake.Write(naming.FromDevPath(dst), data)
}

// mockRecorder counts observed operations.
type mockRecorder struct {
	mu      sync.Mutex
	ops     map[string]int
	commits int
}

func (r *mockRecorder) ObserveOperation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = map[string]int{}
	}
	r.ops[op]++
}

func (r *mockRecorder) ObserveCommit(time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
}

type testEnv struct {
	fake       *lvmtest.FakeLVM
	cache      *lvm.Cache
	dispatcher *lvm.Dispatcher
	copier     *mockCopier
	recorder   *mockRecorder
	clock      *mockClock
	pool       *Pool
}

func newTestEnv(t *testing.T, keep int) *testEnv {
	t.Helper()

	fake := lvmtest.New()
	fake.AddThinPool(testVG, testPool, 100<<30)

	env := &testEnv{
		fake:       fake,
		cache:      lvm.NewCache(fake, lvm.WithCacheElevation(false)),
		dispatcher: lvm.NewDispatcher(context.Background(), fake, lvm.WithElevation(false)),
		copier:     newMockCopier(fake),
		recorder:   &mockRecorder{},
		clock:      &mockClock{t: time.Unix(1700000000, 0)},
	}
	env.pool = env.newPool(t, "lvm", testVG, testPool, keep)
	return env
}

func (e *testEnv) newPool(t *testing.T, name, vg, thin string, keep int) *Pool {
	t.Helper()

	if _, ok := e.fake.Get(naming.PoolID(vg, thin)); !ok {
		e.fake.AddThinPool(vg, thin, 100<<30)
	}

	pool, err := NewPool(
		PoolConfig{Name: name, VolumeGroup: vg, ThinPool: thin, RevisionsToKeep: keep},
		WithDispatcher(e.dispatcher),
		WithCache(e.cache),
		WithCopier(e.copier),
		WithClock(e.clock.Now),
		WithRecorder(e.recorder),
	)
	require.NoError(t, err)
	require.NoError(t, pool.Setup(context.Background()))
	return pool
}

func (e *testEnv) persistent(t *testing.T, vm, name string) *Volume {
	t.Helper()
	v, err := e.pool.InitVolume(vm, VolumeConfig{Name: name, Size: testSize, RW: true, SaveOnStop: true})
	require.NoError(t, err)
	return v
}

// revisionNumbers returns the numbers of every committed revision of vid in
// lvm, backups excluded, ascending.
func (e *testEnv) revisionNumbers(vid string) []int64 {
	m := naming.NewRevisionMatcher(vid, false)
	var nums []int64
	for _, name := range e.fake.Names() {
		rev, ok := m.Match(name)
		if !ok {
			continue
		}
		k, err := revision.Parse(rev)
		if err != nil {
			continue
		}
		nums = append(nums, k.Number)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

func (e *testEnv) has(name string) bool {
	_, ok := e.fake.Get(name)
	return ok
}
