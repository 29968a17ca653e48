// Package status derives the lifecycle phase of a volume from lvm state.
package status

// Phase is the observed state of a volume family.
type Phase string

const (
	PhaseAbsent    Phase = "absent"    // nothing materialized in lvm
	PhaseClean     Phase = "clean"     // current revision present, no snapshot
	PhaseRunning   Phase = "running"   // snapshot or volatile volume in use by a VM
	PhaseImporting Phase = "importing" // import staging volume present
	PhaseOutdated  Phase = "outdated"  // snapshot taken from a superseded source revision
)

// Volume is the view of a volume needed to derive its phase.
// *storage.Volume satisfies it.
type Volume interface {
	Volatile() bool
	Exists() bool
	HasSnapshot() bool
	IsDirty() bool
	IsOutdated() bool
	ImportInProgress() bool
}

// Of returns the phase of v. An import in progress takes precedence over
// everything else, then a stale snapshot.
func Of(v Volume) Phase {
	switch {
	case v.ImportInProgress():
		return PhaseImporting
	case v.IsOutdated():
		return PhaseOutdated
	case v.IsDirty() || v.HasSnapshot():
		return PhaseRunning
	case v.Volatile() && v.Exists():
		return PhaseRunning
	case v.Exists():
		return PhaseClean
	}
	return PhaseAbsent
}

// Describe returns a one-line explanation of a phase.
func Describe(p Phase) string {
	switch p {
	case PhaseAbsent:
		return "volume has not been created"
	case PhaseClean:
		return "volume is at rest"
	case PhaseRunning:
		return "volume is attached to a running VM"
	case PhaseImporting:
		return "an import into the volume has not finished"
	case PhaseOutdated:
		return "snapshot predates the current source revision, restart the VM to pick it up"
	}
	return "unknown phase"
}

// IsInUse returns true if the phase blocks revert and import.
func IsInUse(p Phase) bool {
	return p == PhaseRunning || p == PhaseImporting || p == PhaseOutdated
}
