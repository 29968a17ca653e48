package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
)

// Defaults applied by the loader when a field is omitted.
const (
	DefaultRevisionsToKeep = 1
	DefaultDevType         = "disk"
	DefaultMetricsListen   = ":9464"
	DefaultMetricsInterval = "30s"
)

// File represents a complete strata configuration file.
type File struct {
	Pools   []PoolConfig  `yaml:"pools"`
	Volumes []VolumeDecl  `yaml:"volumes,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
	LVM     LVMConfig     `yaml:"lvm,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// PoolConfig declares one thin pool.
type PoolConfig struct {
	Name            string `yaml:"name"`
	VolumeGroup     string `yaml:"volume_group"`
	ThinPool        string `yaml:"thin_pool"`
	RevisionsToKeep *int   `yaml:"revisions_to_keep,omitempty"`
}

// VolumeDecl declares one volume owned by a VM.
type VolumeDecl struct {
	VM              string `yaml:"vm"`
	Name            string `yaml:"name"`
	Pool            string `yaml:"pool"`
	VID             string `yaml:"vid,omitempty"` // Defaults to <volume_group>/vm-<vm>-<name>
	Size            string `yaml:"size,omitempty"`
	RW              *bool  `yaml:"rw,omitempty"` // Pointer to distinguish unset vs false
	SnapOnStart     bool   `yaml:"snap_on_start,omitempty"`
	SaveOnStop      bool   `yaml:"save_on_stop,omitempty"`
	Source          string `yaml:"source,omitempty"` // "vm:volume" reference
	RevisionsToKeep *int   `yaml:"revisions_to_keep,omitempty"`
	DevType         string `yaml:"devtype,omitempty"`
	Domain          string `yaml:"domain,omitempty"`
	Script          string `yaml:"script,omitempty"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// LVMConfig controls how lvm commands are spawned.
type LVMConfig struct {
	Sudo *bool `yaml:"sudo,omitempty"` // Unset means elevate when not running as root
}

// MetricsConfig controls the metrics exporter.
type MetricsConfig struct {
	Listen   string `yaml:"listen,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

var (
	namePattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*[a-z0-9]$`)
	singleCharPattern = regexp.MustCompile(`^[a-z0-9]$`)
	lvmNamePattern    = regexp.MustCompile(`^[a-zA-Z0-9+_.][a-zA-Z0-9+_.-]*$`)
)

// ValidateName checks a pool, VM or volume name.
// Must start and end with alphanumeric, can contain alphanumeric, hyphens, underscores.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	pattern := namePattern
	if len(name) == 1 {
		pattern = singleCharPattern
	}
	if !pattern.MatchString(name) {
		return fmt.Errorf("name must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", name)
	}
	return nil
}

func validateLVMName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !lvmNamePattern.MatchString(name) {
		return fmt.Errorf("%s contains characters lvm does not accept: %q", field, name)
	}
	return nil
}

// ParseSize parses a human size such as "10GB" into bytes.
func ParseSize(s string) (int64, error) {
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(ds.Bytes()), nil
}

// Validate checks the configuration for errors.
// Does not check the host for the declared pools, only config structure.
func (f *File) Validate() error {
	if len(f.Pools) == 0 {
		return fmt.Errorf("at least one pools entry is required")
	}

	poolsSeen := make(map[string]bool)
	for i := range f.Pools {
		p := &f.Pools[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if poolsSeen[p.Name] {
			return fmt.Errorf("pools[%d]: duplicate pool name %q", i, p.Name)
		}
		poolsSeen[p.Name] = true
	}

	volumesSeen := make(map[string]bool)
	for i := range f.Volumes {
		v := &f.Volumes[i]
		if err := v.Validate(); err != nil {
			return fmt.Errorf("volumes[%d]: %w", i, err)
		}
		if !poolsSeen[v.Pool] {
			return fmt.Errorf("volumes[%d]: unknown pool %q", i, v.Pool)
		}
		if volumesSeen[v.Ref()] {
			return fmt.Errorf("volumes[%d]: duplicate volume %q", i, v.Ref())
		}
		volumesSeen[v.Ref()] = true
	}

	// Sources may be declared in any order, so resolve them once all volumes are known.
	for i := range f.Volumes {
		v := &f.Volumes[i]
		if v.Source == "" {
			continue
		}
		if !volumesSeen[v.Source] {
			return fmt.Errorf("volumes[%d]: source %q is not declared", i, v.Source)
		}
		if v.Source == v.Ref() {
			return fmt.Errorf("volumes[%d]: volume cannot be its own source", i)
		}
	}

	if err := f.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := f.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	return nil
}

// Validate checks pool configuration.
func (p *PoolConfig) Validate() error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := validateLVMName("volume_group", p.VolumeGroup); err != nil {
		return err
	}
	if err := validateLVMName("thin_pool", p.ThinPool); err != nil {
		return err
	}
	if p.RevisionsToKeep != nil && *p.RevisionsToKeep < 0 {
		return fmt.Errorf("revisions_to_keep must be >= 0, got %d", *p.RevisionsToKeep)
	}
	return nil
}

// Validate checks volume declaration.
func (v *VolumeDecl) Validate() error {
	if err := ValidateName(v.VM); err != nil {
		return fmt.Errorf("vm: %w", err)
	}
	if err := ValidateName(v.Name); err != nil {
		return err
	}
	if v.Pool == "" {
		return fmt.Errorf("pool is required")
	}
	if v.SnapOnStart && v.SaveOnStop {
		return fmt.Errorf("cannot specify both 'snap_on_start' and 'save_on_stop'")
	}
	if v.SnapOnStart && v.Source == "" {
		return fmt.Errorf("snap_on_start requires a source")
	}
	if v.Source != "" && !v.SnapOnStart && !v.SaveOnStop {
		return fmt.Errorf("source is only used with 'snap_on_start' or 'save_on_stop'")
	}
	if v.Source != "" {
		if _, _, err := ParseVolumeRef(v.Source); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	if v.Size != "" {
		size, err := ParseSize(v.Size)
		if err != nil {
			return err
		}
		if size <= 0 {
			return fmt.Errorf("size must be > 0, got %q", v.Size)
		}
	}
	if v.Source == "" && v.SaveOnStop && v.Size == "" {
		return fmt.Errorf("size is required for a persistent volume without a source")
	}
	if v.VID != "" && !strings.Contains(v.VID, "/") {
		return fmt.Errorf("vid must be <volume_group>/<name>, got %q", v.VID)
	}
	if v.RevisionsToKeep != nil && *v.RevisionsToKeep < 0 {
		return fmt.Errorf("revisions_to_keep must be >= 0, got %d", *v.RevisionsToKeep)
	}
	return nil
}

// Ref returns the "vm:volume" reference of the declaration.
func (v *VolumeDecl) Ref() string {
	return v.VM + ":" + v.Name
}

// SizeBytes returns the declared size in bytes, or 0 when unset.
func (v *VolumeDecl) SizeBytes() (int64, error) {
	if v.Size == "" {
		return 0, nil
	}
	return ParseSize(v.Size)
}

// IsRW reports whether the volume is writable, defaulting to true.
func (v *VolumeDecl) IsRW() bool {
	return v.RW == nil || *v.RW
}

// Validate checks log configuration.
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unsupported level %q", l.Level)
}

// Validate checks metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Interval == "" {
		return nil
	}
	if _, err := m.IntervalDuration(); err != nil {
		return err
	}
	return nil
}

// IntervalDuration returns the metrics refresh interval.
func (m *MetricsConfig) IntervalDuration() (time.Duration, error) {
	interval := m.Interval
	if interval == "" {
		interval = DefaultMetricsInterval
	}
	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0, got %q", interval)
	}
	return d, nil
}

// ParseVolumeRef splits a "vm:volume" reference.
func ParseVolumeRef(ref string) (string, string, error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid vm:volume format: %q", ref)
	}
	vmName := strings.TrimSpace(parts[0])
	volName := strings.TrimSpace(parts[1])
	if vmName == "" || volName == "" {
		return "", "", fmt.Errorf("invalid vm:volume format: vm and volume cannot be empty")
	}
	return vmName, volName, nil
}

// Pool returns the named pool configuration.
func (f *File) Pool(name string) (*PoolConfig, bool) {
	for i := range f.Pools {
		if f.Pools[i].Name == name {
			return &f.Pools[i], true
		}
	}
	return nil, false
}

// Volume returns the volume declaration for a "vm:volume" reference.
func (f *File) Volume(ref string) (*VolumeDecl, bool) {
	for i := range f.Volumes {
		if f.Volumes[i].Ref() == ref {
			return &f.Volumes[i], true
		}
	}
	return nil, false
}

// VMVolumes returns the declarations owned by vmName in file order.
func (f *File) VMVolumes(vmName string) []*VolumeDecl {
	var out []*VolumeDecl
	for i := range f.Volumes {
		if f.Volumes[i].VM == vmName {
			out = append(out, &f.Volumes[i])
		}
	}
	return out
}

// DefaultVID returns the LVM id of a declaration when vid is not set.
// Format: <volume_group>/vm-<vm>-<name>
func (v *VolumeDecl) DefaultVID(volumeGroup string) string {
	if v.VID != "" {
		return v.VID
	}
	return fmt.Sprintf("%s/vm-%s-%s", volumeGroup, v.VM, v.Name)
}

// Normalize sanitizes user input to consistent formats.
// This is called automatically by the loader before validation.
func (f *File) Normalize() {
	for i := range f.Pools {
		f.Pools[i].Name = strings.ToLower(strings.TrimSpace(f.Pools[i].Name))
	}
	for i := range f.Volumes {
		v := &f.Volumes[i]
		v.VM = strings.ToLower(strings.TrimSpace(v.VM))
		v.Name = strings.ToLower(strings.TrimSpace(v.Name))
		v.Pool = strings.ToLower(strings.TrimSpace(v.Pool))
		v.Source = strings.ToLower(strings.TrimSpace(v.Source))
	}
	// Note: volume group and thin pool names are NOT normalized - they must match lvm exactly
}
