package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/strata/internal/config"
	"github.com/jbweber/strata/internal/loader"
	"github.com/jbweber/strata/internal/lvm/lvmtest"
)

const testConfig = `
pools:
  - name: default
    volume_group: vg0
    thin_pool: pool00
volumes:
  - vm: work
    name: root
    pool: default
    snap_on_start: true
    source: fedora:root
    rw: false
  - vm: work
    name: private
    pool: default
    size: 2GB
    save_on_stop: true
  - vm: work
    name: volatile
    pool: default
    size: 1GB
  - vm: fedora
    name: root
    pool: default
    size: 10GB
    save_on_stop: true
lvm:
  sudo: false
`

func newFake() *lvmtest.FakeLVM {
	fake := lvmtest.New()
	fake.AddThinPool("vg0", "pool00", 100<<30)
	return fake
}

func TestNewRuntime_DeclaresSourcesFirst(t *testing.T) {
	ctx := context.Background()
	f, err := loaderFromYAML(t, testConfig)
	require.NoError(t, err)

	rt, err := newRuntime(ctx, f, newFake())
	require.NoError(t, err)
	require.NoError(t, rt.refresh(ctx))

	root, err := rt.volume("work:root")
	require.NoError(t, err)
	tpl, err := rt.volume("fedora:root")
	require.NoError(t, err)

	assert.Same(t, tpl, root.Source())
	assert.Equal(t, "vg0/vm-work-root", root.VID())
	assert.False(t, root.RW())

	private, err := rt.volume("Work:Private")
	require.NoError(t, err)
	assert.Equal(t, int64(2<<30), private.Size())
	assert.Equal(t, 1, private.Pool().RevisionsToKeep())
}

func TestNewRuntime_SourceCycle(t *testing.T) {
	f := &config.File{
		Pools: []config.PoolConfig{{Name: "default", VolumeGroup: "vg0", ThinPool: "pool00"}},
		Volumes: []config.VolumeDecl{
			{VM: "a", Name: "root", Pool: "default", SnapOnStart: true, Source: "b:root"},
			{VM: "b", Name: "root", Pool: "default", SnapOnStart: true, Source: "a:root"},
		},
	}
	require.NoError(t, f.Validate())

	_, err := newRuntime(context.Background(), f, newFake())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source cycle")
}

func TestRuntime_Lookups(t *testing.T) {
	f, err := loaderFromYAML(t, testConfig)
	require.NoError(t, err)
	rt, err := newRuntime(context.Background(), f, newFake())
	require.NoError(t, err)

	_, err = rt.volume("work")
	assert.Error(t, err)
	_, err = rt.volume("work:missing")
	assert.ErrorContains(t, err, "not declared")
	_, err = rt.pool("missing")
	assert.ErrorContains(t, err, "not configured")

	s, err := rt.vm("work")
	require.NoError(t, err)
	assert.Equal(t, []string{"private", "root", "volatile"}, s.Names())

	_, err = rt.vm("nobody")
	assert.ErrorContains(t, err, "no volumes declared")

	assert.Equal(t, []string{"default"}, rt.poolNames(nil))
	assert.Equal(t, []string{"x"}, rt.poolNames([]string{"x"}))
}

func loaderFromYAML(t *testing.T, content string) (*config.File, error) {
	t.Helper()
	return loader.LoadFromYAML([]byte(content))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// runCLI executes the root command against fake and returns its error.
func runCLI(t *testing.T, fake *lvmtest.FakeLVM, path string, args ...string) error {
	t.Helper()

	orig := lvmRunner
	lvmRunner = fake
	t.Cleanup(func() { lvmRunner = orig })

	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestCLI_VMLifecycle(t *testing.T) {
	fake := newFake()
	path := writeConfig(t, testConfig)

	steps := [][]string{
		{"pool", "setup"},
		{"vm", "create", "fedora"},
		{"vm", "create", "work"},
		{"vm", "start", "work"},
		{"vm", "verify", "work"},
	}
	for _, args := range steps {
		require.NoError(t, runCLI(t, fake, path, args...), strings.Join(args, " "))
	}

	for _, name := range []string{"vg0/vm-work-root-snap", "vg0/vm-work-private-snap", "vg0/vm-work-volatile"} {
		_, ok := fake.Get(name)
		assert.True(t, ok, name)
	}

	require.NoError(t, runCLI(t, fake, path, "vm", "stop", "work"))
	for _, name := range []string{"vg0/vm-work-root-snap", "vg0/vm-work-private-snap", "vg0/vm-work-volatile"} {
		_, ok := fake.Get(name)
		assert.False(t, ok, name)
	}

	require.NoError(t, runCLI(t, fake, path, "volume", "resize", "work:private", "4GB"))
	require.NoError(t, runCLI(t, fake, path, "pool", "info"))
	require.NoError(t, runCLI(t, fake, path, "volume", "revisions", "work:private"))
	require.NoError(t, runCLI(t, fake, path, "volume", "revert", "work:private"))

	require.NoError(t, runCLI(t, fake, path, "vm", "remove", "work"))
	for _, name := range fake.Names() {
		assert.False(t, strings.HasPrefix(name, "vg0/vm-work-"), name)
	}
}

func TestCLI_Errors(t *testing.T) {
	fake := newFake()
	path := writeConfig(t, testConfig)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown pool", []string{"pool", "setup", "missing"}, "pool missing is not configured"},
		{"undeclared volume", []string{"volume", "start", "work:swap"}, "volume work:swap is not declared"},
		{"bad size", []string{"volume", "resize", "work:private", "huge"}, "invalid size"},
		{"shrink refused", []string{"volume", "resize", "work:private", "1GB"}, "failed to resize volume work:private"},
		{"unknown vm", []string{"vm", "start", "nobody"}, "no volumes declared for vm nobody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, fake, path, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	err := runCLI(t, fake, filepath.Join(t.TempDir(), "missing.yaml"), "pool", "info")
	assert.ErrorContains(t, err, "failed to load config")
}
