// Package copier streams block device contents with dd as a cancellable task.
package copier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/lvm"
)

// ExitError reports a dd run that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("dd exit code: %d", e.Code)
}

// ExitCode returns the dd exit code carried by err, or -1.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// DD copies devices with dd(1), skipping zero blocks on the destination.
type DD struct {
	runner lvm.Runner
	log    logger.Logger

	// accessible reports whether the process may read src and write dst
	// without sudo.
	accessible func(src, dst string) bool
}

// Option configures a DD.
type Option func(*DD)

// WithAccessCheck replaces the device permission check.
func WithAccessCheck(f func(src, dst string) bool) Option {
	return func(d *DD) { d.accessible = f }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *DD) { d.log = l }
}

// NewDD returns a dd copier running through runner.
func NewDD(runner lvm.Runner, opts ...Option) *DD {
	d := &DD{
		runner:     runner,
		log:        logger.Log,
		accessible: deviceAccessible,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.AddContext(d.log, logger.Ctx{"component": "copier"})
	return d
}

func deviceAccessible(src, dst string) bool {
	return unix.Access(src, unix.R_OK) == nil && unix.Access(dst, unix.W_OK) == nil
}

// Command returns the argv used to copy src to dst.
func (d *DD) Command(src, dst string) []string {
	argv := []string{"dd", "if=" + src, "of=" + dst, "conv=sparse", "status=none"}
	if !d.accessible(src, dst) {
		argv = append([]string{"sudo"}, argv...)
	}
	return argv
}

// Copy copies src to dst and blocks until dd exits or ctx is done. A
// cancelled copy returns ctx's error; the destination is left as dd left it.
func (d *DD) Copy(ctx context.Context, src, dst string) error {
	argv := d.Command(src, dst)

	d.log.Debug("Copying device", logger.Ctx{"src": src, "dst": dst})

	res, err := d.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to run dd: %w", err)
	}
	if res.ExitCode != 0 {
		return &ExitError{Code: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	return nil
}
