package storage

import (
	"errors"
	"fmt"
)

var (
	ErrPoolNotFound      = errors.New("thin pool does not exist")
	ErrNotThinPool       = errors.New("volume is not a thin pool")
	ErrShrink            = errors.New("shrinking volumes is not supported")
	ErrReadOnly          = errors.New("volume is read-only")
	ErrDirty             = errors.New("volume is in use")
	ErrImportInProgress  = errors.New("import operation in progress")
	ErrRevisionNotFound  = errors.New("revision not found")
	ErrMissing           = errors.New("volume is missing")
	ErrNotActive         = errors.New("volume is inactive")
	ErrSizeImmutable     = errors.New("volume size cannot be set directly, use Resize")
	ErrCopyFailed        = errors.New("data copy failed")
	ErrInvalidConfig     = errors.New("invalid volume configuration")
	ErrNoCopier          = errors.New("no copier configured")
	ErrPoolNameRequired  = errors.New("pool has no name")
	ErrVolumeNameMissing = errors.New("volume name is required")
)

// ErrPrecondition and ErrInconsistent report misuse of the API or a volume
// family lvm left in an unexpected shape. They are never wrapped in a Fault.
var (
	ErrPrecondition = errors.New("precondition violated")
	ErrInconsistent = errors.New("inconsistent volume state")
)

// Fault is a storage operation that lvm, dd or a volume's state refused.
type Fault struct {
	Op  string // operation, e.g. "start"
	VID string // volume or pool id
	Err error  // *lvm.CommandError, *copier.ExitError or a sentinel above
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.VID, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err carries a *Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// fault wraps err in a Fault unless it is nil, already a Fault, or a
// precondition error.
func fault(op, vid string, err error) error {
	if err == nil || IsFault(err) {
		return err
	}
	if errors.Is(err, ErrPrecondition) || errors.Is(err, ErrInconsistent) {
		return err
	}
	return &Fault{Op: op, VID: vid, Err: err}
}
