package storage

import (
	"fmt"
)

// DefaultDevType is the libvirt disk device used when a volume does not name one.
const DefaultDevType = "disk"

// PoolConfig describes a thin pool.
type PoolConfig struct {
	Name            string // pool name, required before volumes can be initialized
	VolumeGroup     string // LVM volume group
	ThinPool        string // thin pool logical volume within VolumeGroup
	RevisionsToKeep int    // old revisions retained per volume on commit
}

// Validate checks if the pool config is valid.
func (c *PoolConfig) Validate() error {
	if c.VolumeGroup == "" {
		return fmt.Errorf("volume group is required")
	}
	if c.ThinPool == "" {
		return fmt.Errorf("thin pool is required")
	}
	if c.RevisionsToKeep < 0 {
		return fmt.Errorf("revisions_to_keep must be non-negative, got %d", c.RevisionsToKeep)
	}
	return nil
}

// VolumeConfig declares a volume.
type VolumeConfig struct {
	Name            string  // volume name within its VM, e.g. "root"
	VID             string  // optional explicit vid
	Size            int64   // bytes
	RW              bool    // writable by the VM
	SnapOnStart     bool    // start from a fresh snapshot
	SaveOnStop      bool    // commit the snapshot as a revision on stop
	Source          *Volume // volume snapshotted or cloned from
	RevisionsToKeep *int    // nil means the pool's value

	// Passed through to BlockDevice.
	Script  string
	Domain  string
	DevType string
}

// Validate checks if the volume config is valid.
func (c *VolumeConfig) Validate() error {
	if c.Name == "" {
		return ErrVolumeNameMissing
	}
	if c.SnapOnStart && c.SaveOnStop {
		return fmt.Errorf("%w: snap_on_start and save_on_stop are mutually exclusive", ErrInvalidConfig)
	}
	if c.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidConfig, c.Size)
	}
	if c.RevisionsToKeep != nil && *c.RevisionsToKeep < 0 {
		return fmt.Errorf("%w: revisions_to_keep must be non-negative, got %d", ErrInvalidConfig, *c.RevisionsToKeep)
	}
	return nil
}

// BlockDevice is what a VM attaches for a volume.
type BlockDevice struct {
	Path    string // device node, e.g. /dev/qubes_dom0/vm-work-root-snap
	Name    string // volume name
	Script  string // optional attach script
	RW      bool
	Domain  string // backend domain, empty for the local host
	DevType string // libvirt disk device, e.g. "disk" or "cdrom"
}
