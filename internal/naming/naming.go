// Package naming provides the logical volume naming conventions used for
// thin volumes. A volume id (vid) has the form
//
//	{volume_group}/vm-{vm_name}-{volume_name}
//
// and a set of derived names hang off it:
//
//	{vid}-snap          snapshot staged while the VM runs
//	{vid}-import        staging volume for an import in progress
//	{vid}-{n}.{ts}      committed revision (current format)
//	{vid}-{ts}          committed revision (legacy format)
//	{vid}-{rev}-back    backup revision left by older tooling
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// SnapSuffix marks the snapshot of a running volume.
	SnapSuffix = "-snap"
	// ImportSuffix marks the staging volume of an import.
	ImportSuffix = "-import"
	// BackSuffix marks a backup revision.
	BackSuffix = "-back"

	// DevPrefix is where device-mapper exposes logical volumes.
	DevPrefix = "/dev/"
)

var revisionSuffixRE = regexp.MustCompile(`-[0-9]+\.[0-9]+$`)

// VID returns the volume id for a VM's volume.
// Format: {vg}/vm-{vmName}-{volumeName}
//
// Example: VID("qubes_dom0", "work", "private") → qubes_dom0/vm-work-private
func VID(volumeGroup, vmName, volumeName string) string {
	return fmt.Sprintf("%s/vm-%s-%s", volumeGroup, vmName, volumeName)
}

// PoolID returns the id of a thin pool: {vg}/{thinPool}.
func PoolID(volumeGroup, thinPool string) string {
	return volumeGroup + "/" + thinPool
}

// Snap returns the snapshot name of a vid.
func Snap(vid string) string {
	return vid + SnapSuffix
}

// Import returns the import staging name of a vid.
func Import(vid string) string {
	return vid + ImportSuffix
}

// Revision returns the name of the revision rev of vid.
func Revision(vid, rev string) string {
	return vid + "-" + rev
}

// LVName strips the volume group from a name: "vg/lv" → "lv".
func LVName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// VolumeGroup returns the volume group of a name: "vg/lv" → "vg".
func VolumeGroup(name string) string {
	vg, _, _ := strings.Cut(name, "/")
	return vg
}

// DevPath returns the device node of a name.
func DevPath(name string) string {
	return DevPrefix + name
}

// FromDevPath strips the /dev/ prefix from a device path.
func FromDevPath(path string) string {
	return strings.TrimPrefix(path, DevPrefix)
}

// IsStaging reports whether name is a snapshot or import staging volume.
func IsStaging(name string) bool {
	return strings.HasSuffix(name, SnapSuffix) || strings.HasSuffix(name, ImportSuffix)
}

// IsBackup reports whether name is a backup revision.
func IsBackup(name string) bool {
	return strings.HasSuffix(name, BackSuffix)
}

// BaseVID strips a current-format revision suffix from name. Names without
// one are returned unchanged.
//
// Example: BaseVID("vg/vm-work-root-3.1521556239") → vg/vm-work-root
func BaseVID(name string) string {
	return revisionSuffixRE.ReplaceAllString(name, "")
}

// RevisionMatcher matches the revisions of one vid.
type RevisionMatcher struct {
	prefix string
	re     *regexp.Regexp
}

// NewRevisionMatcher returns a matcher for the revisions of vid. When
// withBackups is set, backup revisions are matched too.
func NewRevisionMatcher(vid string, withBackups bool) *RevisionMatcher {
	suffix := ""
	if withBackups {
		suffix = "(" + regexp.QuoteMeta(BackSuffix) + ")?"
	}
	pattern := "^" + regexp.QuoteMeta(vid) + `-([0-9]+\.)?[0-9]+` + suffix + "$"
	return &RevisionMatcher{
		prefix: vid + "-",
		re:     regexp.MustCompile(pattern),
	}
}

// Match returns the revision id of name, if name is a revision of the vid.
func (m *RevisionMatcher) Match(name string) (string, bool) {
	if !m.re.MatchString(name) {
		return "", false
	}
	return strings.TrimPrefix(name, m.prefix), true
}
