package lvm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jbweber/strata/internal/logger"
)

// Action is a logical volume operation.
type Action string

const (
	ActionCreate   Action = "create"
	ActionClone    Action = "clone"
	ActionRemove   Action = "remove"
	ActionRename   Action = "rename"
	ActionExtend   Action = "extend"
	ActionActivate Action = "activate"
)

// MiB is the unit lvextend sizes are expressed in.
const MiB = 1024 * 1024

// Observer is told about every dispatch. It is how metrics hook in.
type Observer interface {
	ObserveDispatch(action Action, err error)
}

// Dispatcher turns volume actions into lvm invocations.
type Dispatcher struct {
	runner   Runner
	elevate  bool
	legacy   bool
	probed   bool
	log      logger.Logger
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithElevation forces sudo on or off. By default it is used when the
// process is not root.
func WithElevation(elevate bool) DispatcherOption {
	return func(d *Dispatcher) { d.elevate = elevate }
}

// WithLegacyLVM skips the version probe and declares whether lvm lacks
// --setactivationskip.
func WithLegacyLVM(legacy bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.legacy = legacy
		d.probed = true
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a Dispatcher. Unless WithLegacyLVM is given, it asks
// lvm once whether it understands the activation-skip flag.
func NewDispatcher(ctx context.Context, runner Runner, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		runner:  runner,
		elevate: NeedsElevation(),
		log:     logger.Log,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.AddContext(d.log, logger.Ctx{"component": "lvm"})

	if !d.probed {
		d.legacy = isLegacyLVM(ctx, runner)
	}
	if d.legacy {
		d.log.Info("lvm does not support --setactivationskip, omitting -kn")
	}

	return d
}

// isLegacyLVM reports whether lvcreate predates --setactivationskip. A
// failing probe means lvm is assumed current.
func isLegacyLVM(ctx context.Context, runner Runner) bool {
	res, err := runner.Run(ctx, "lvm", "lvcreate", "--help")
	if err != nil || res.ExitCode != 0 {
		return false
	}
	return !strings.Contains(res.Stdout+res.Stderr, "--setactivationskip")
}

// Legacy reports whether -kn is being omitted.
func (d *Dispatcher) Legacy() bool {
	return d.legacy
}

// Command returns the full argv for an action.
func (d *Dispatcher) Command(action Action, args ...string) ([]string, error) {
	var lvmArgs []string

	switch action {
	case ActionRemove:
		if len(args) != 1 {
			return nil, fmt.Errorf("remove requires 1 argument, got %d", len(args))
		}
		lvmArgs = []string{"lvremove", "-f", args[0]}
	case ActionClone:
		if len(args) != 2 {
			return nil, fmt.Errorf("clone requires 2 arguments, got %d", len(args))
		}
		lvmArgs = []string{"lvcreate", "-kn", "-ay", "-s", args[0], "-n", args[1]}
	case ActionCreate:
		if len(args) != 3 {
			return nil, fmt.Errorf("create requires 3 arguments, got %d", len(args))
		}
		lvmArgs = []string{"lvcreate", "-T", args[0], "-kn", "-ay", "-n", args[1], "-V", args[2] + "B"}
	case ActionExtend:
		if len(args) != 2 {
			return nil, fmt.Errorf("extend requires 2 arguments, got %d", len(args))
		}
		size, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid extend size %q", args[1])
		}
		lvmArgs = []string{"lvextend", fmt.Sprintf("-L%dm", (size+MiB-1)/MiB), args[0]}
	case ActionActivate:
		if len(args) != 1 {
			return nil, fmt.Errorf("activate requires 1 argument, got %d", len(args))
		}
		lvmArgs = []string{"lvchange", "-ay", args[0]}
	case ActionRename:
		if len(args) != 2 {
			return nil, fmt.Errorf("rename requires 2 arguments, got %d", len(args))
		}
		lvmArgs = []string{"lvrename", args[0], args[1]}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}

	if d.legacy {
		filtered := lvmArgs[:0]
		for _, a := range lvmArgs {
			if a != "-kn" {
				filtered = append(filtered, a)
			}
		}
		lvmArgs = filtered
	}

	argv := append([]string{"lvm"}, lvmArgs...)
	if d.elevate {
		argv = append([]string{"sudo"}, argv...)
	}
	return argv, nil
}

// Dispatch runs a single action. A non-zero exit is returned as a
// *CommandError carrying lvm's stderr.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, args ...string) (err error) {
	if d.observer != nil {
		defer func() { d.observer.ObserveDispatch(action, err) }()
	}

	argv, err := d.Command(action, args...)
	if err != nil {
		return err
	}

	res, err := d.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, strings.Join(args, " "), err)
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		d.log.Debug(out, logger.Ctx{"action": string(action)})
	}

	if res.ExitCode != 0 {
		return &CommandError{
			Action:   action,
			Args:     argv,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}

	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		d.log.Warn(msg, logger.Ctx{"action": string(action)})
	}

	return nil
}

// Create creates a thin volume of size bytes in poolID. name is the bare
// logical volume name (no volume group).
func (d *Dispatcher) Create(ctx context.Context, poolID, name string, size int64) error {
	return d.Dispatch(ctx, ActionCreate, poolID, name, strconv.FormatInt(size, 10))
}

// Clone snapshots src as dst.
func (d *Dispatcher) Clone(ctx context.Context, src, dst string) error {
	return d.Dispatch(ctx, ActionClone, src, dst)
}

// Remove removes a logical volume.
func (d *Dispatcher) Remove(ctx context.Context, name string) error {
	return d.Dispatch(ctx, ActionRemove, name)
}

// Rename renames a logical volume.
func (d *Dispatcher) Rename(ctx context.Context, oldName, newName string) error {
	return d.Dispatch(ctx, ActionRename, oldName, newName)
}

// Extend grows name to size bytes, rounded up to a whole MiB.
func (d *Dispatcher) Extend(ctx context.Context, name string, size int64) error {
	return d.Dispatch(ctx, ActionExtend, name, strconv.FormatInt(size, 10))
}

// Activate makes the device node of name available.
func (d *Dispatcher) Activate(ctx context.Context, name string) error {
	return d.Dispatch(ctx, ActionActivate, name)
}
