package lvm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	ctx := context.Background()

	res, err := ExecRunner{}.Run(ctx, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)

	res, err = ExecRunner{}.Run(ctx, "true")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunner_NotFound(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "/nonexistent/lvm")
	assert.Error(t, err)
}

func TestExecRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ExecRunner{}.Run(ctx, "sleep", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
