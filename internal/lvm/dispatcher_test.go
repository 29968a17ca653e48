package lvm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/strata/internal/lvm"
	"github.com/jbweber/strata/internal/lvm/lvmtest"
)

func TestDispatcher_Command(t *testing.T) {
	tests := []struct {
		name    string
		elevate bool
		legacy  bool
		action  lvm.Action
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name:   "remove",
			action: lvm.ActionRemove,
			args:   []string{"vg0/vm-a-root-snap"},
			want:   []string{"lvm", "lvremove", "-f", "vg0/vm-a-root-snap"},
		},
		{
			name:   "clone",
			action: lvm.ActionClone,
			args:   []string{"vg0/vm-a-root-1.100", "vg0/vm-a-root-snap"},
			want:   []string{"lvm", "lvcreate", "-kn", "-ay", "-s", "vg0/vm-a-root-1.100", "-n", "vg0/vm-a-root-snap"},
		},
		{
			name:   "create",
			action: lvm.ActionCreate,
			args:   []string{"vg0/pool00", "vm-a-root-1.100", "1073741824"},
			want:   []string{"lvm", "lvcreate", "-T", "vg0/pool00", "-kn", "-ay", "-n", "vm-a-root-1.100", "-V", "1073741824B"},
		},
		{
			name:   "extend rounds up to MiB",
			action: lvm.ActionExtend,
			args:   []string{"vg0/vm-a-root-2.200", "1048577"},
			want:   []string{"lvm", "lvextend", "-L2m", "vg0/vm-a-root-2.200"},
		},
		{
			name:   "extend exact MiB",
			action: lvm.ActionExtend,
			args:   []string{"vg0/vm-a-root-2.200", "2147483648"},
			want:   []string{"lvm", "lvextend", "-L2048m", "vg0/vm-a-root-2.200"},
		},
		{
			name:   "activate",
			action: lvm.ActionActivate,
			args:   []string{"vg0/vm-a-root-2.200"},
			want:   []string{"lvm", "lvchange", "-ay", "vg0/vm-a-root-2.200"},
		},
		{
			name:   "rename",
			action: lvm.ActionRename,
			args:   []string{"vg0/vm-a-root", "vg0/vm-a-root-1.100"},
			want:   []string{"lvm", "lvrename", "vg0/vm-a-root", "vg0/vm-a-root-1.100"},
		},
		{
			name:    "elevated",
			elevate: true,
			action:  lvm.ActionRemove,
			args:    []string{"vg0/x"},
			want:    []string{"sudo", "lvm", "lvremove", "-f", "vg0/x"},
		},
		{
			name:   "legacy lvm drops -kn",
			legacy: true,
			action: lvm.ActionClone,
			args:   []string{"vg0/a", "vg0/b"},
			want:   []string{"lvm", "lvcreate", "-ay", "-s", "vg0/a", "-n", "vg0/b"},
		},
		{
			name:    "unknown action",
			action:  lvm.Action("resize"),
			args:    []string{"vg0/a"},
			wantErr: true,
		},
		{
			name:    "wrong arity",
			action:  lvm.ActionClone,
			args:    []string{"vg0/a"},
			wantErr: true,
		},
		{
			name:    "bad extend size",
			action:  lvm.ActionExtend,
			args:    []string{"vg0/a", "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := lvm.NewDispatcher(context.Background(), lvmtest.New(),
				lvm.WithElevation(tt.elevate), lvm.WithLegacyLVM(tt.legacy))

			got, err := d.Command(tt.action, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatcher_UnsupportedAction(t *testing.T) {
	d := lvm.NewDispatcher(context.Background(), lvmtest.New(), lvm.WithElevation(false), lvm.WithLegacyLVM(false))
	err := d.Dispatch(context.Background(), lvm.Action("resize"), "vg0/a")
	assert.ErrorIs(t, err, lvm.ErrUnsupportedAction)
}

func TestDispatcher_VersionProbe(t *testing.T) {
	ctx := context.Background()

	modern := lvmtest.New()
	assert.False(t, lvm.NewDispatcher(ctx, modern, lvm.WithElevation(false)).Legacy())

	old := lvmtest.New()
	old.Legacy = true
	d := lvm.NewDispatcher(ctx, old, lvm.WithElevation(false))
	assert.True(t, d.Legacy())

	argv, err := d.Command(lvm.ActionCreate, "vg0/pool00", "x", "10")
	require.NoError(t, err)
	assert.NotContains(t, argv, "-kn")
}

func TestDispatcher_Fault(t *testing.T) {
	ctx := context.Background()
	fake := lvmtest.New()
	d := lvm.NewDispatcher(ctx, fake, lvm.WithElevation(false), lvm.WithLegacyLVM(false))

	err := d.Remove(ctx, "vg0/missing")
	require.Error(t, err)

	var cmdErr *lvm.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, lvm.ActionRemove, cmdErr.Action)
	assert.Equal(t, 5, cmdErr.ExitCode)
	assert.Equal(t, `Failed to find logical volume "vg0/missing"`, err.Error())
	assert.True(t, lvm.IsCommandError(err))
}

func TestDispatcher_EmptyStderr(t *testing.T) {
	err := &lvm.CommandError{Action: lvm.ActionRemove, ExitCode: 3}
	assert.Equal(t, "lvm remove exited with code 3", err.Error())
}

type recordingObserver struct {
	actions []lvm.Action
	errs    []error
}

func (r *recordingObserver) ObserveDispatch(action lvm.Action, err error) {
	r.actions = append(r.actions, action)
	r.errs = append(r.errs, err)
}

func TestDispatcher_Actions(t *testing.T) {
	ctx := context.Background()
	fake := lvmtest.New()
	fake.AddThinPool("vg0", "pool00", 100*lvm.MiB)
	obs := &recordingObserver{}

	d := lvm.NewDispatcher(ctx, fake, lvm.WithElevation(false), lvm.WithObserver(obs))

	require.NoError(t, d.Create(ctx, "vg0/pool00", "vm-a-root", 4*lvm.MiB))
	require.NoError(t, d.Clone(ctx, "vg0/vm-a-root", "vg0/vm-a-root-snap"))
	require.NoError(t, d.Extend(ctx, "vg0/vm-a-root-snap", 8*lvm.MiB))
	require.NoError(t, d.Rename(ctx, "vg0/vm-a-root-snap", "vg0/vm-a-root-1.100"))
	require.NoError(t, d.Activate(ctx, "vg0/vm-a-root-1.100"))
	require.NoError(t, d.Remove(ctx, "vg0/vm-a-root"))

	lv, ok := fake.Get("vg0/vm-a-root-1.100")
	require.True(t, ok)
	assert.Equal(t, int64(8*lvm.MiB), lv.Size)
	assert.Equal(t, "vm-a-root", lv.Origin)
	assert.Equal(t, "pool00", lv.PoolLV)

	_, ok = fake.Get("vg0/vm-a-root")
	assert.False(t, ok)

	assert.Equal(t, []lvm.Action{
		lvm.ActionCreate, lvm.ActionClone, lvm.ActionExtend,
		lvm.ActionRename, lvm.ActionActivate, lvm.ActionRemove,
	}, obs.actions)
	for _, err := range obs.errs {
		assert.NoError(t, err)
	}
}

func TestDispatcher_WarningIsNotFault(t *testing.T) {
	ctx := context.Background()
	runner := stubRunner{res: lvm.Result{Stderr: "  WARNING: Sum of all thin volume sizes exceeds the size of thin pool"}}
	d := lvm.NewDispatcher(ctx, runner, lvm.WithElevation(false), lvm.WithLegacyLVM(false))

	assert.NoError(t, d.Activate(ctx, "vg0/a"))
}

type stubRunner struct {
	res lvm.Result
	err error
}

func (s stubRunner) Run(context.Context, string, ...string) (lvm.Result, error) {
	return s.res, s.err
}

func TestDispatcher_RunnerError(t *testing.T) {
	ctx := context.Background()
	d := lvm.NewDispatcher(ctx, stubRunner{err: errors.New("exec: \"lvm\": executable file not found")},
		lvm.WithElevation(false), lvm.WithLegacyLVM(false))

	err := d.Activate(ctx, "vg0/a")
	require.Error(t, err)
	assert.False(t, lvm.IsCommandError(err))
	assert.Contains(t, err.Error(), "failed to activate vg0/a")
}
