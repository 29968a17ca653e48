package config

import (
	"strings"
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func validFile() *File {
	return &File{
		Pools: []PoolConfig{
			{Name: "default", VolumeGroup: "qubes_dom0", ThinPool: "vm-pool"},
		},
		Volumes: []VolumeDecl{
			{VM: "fedora-43", Name: "root", Pool: "default", Size: "10GB", SaveOnStop: true},
			{VM: "work", Name: "root", Pool: "default", SnapOnStart: true, Source: "fedora-43:root"},
			{VM: "work", Name: "private", Pool: "default", Size: "2GB", SaveOnStop: true},
			{VM: "work", Name: "volatile", Pool: "default", Size: "1GB"},
		},
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "work", false},
		{"single char", "a", false},
		{"hyphen and underscore", "my-vm_01", false},
		{"empty", "", true},
		{"uppercase", "Work", true},
		{"leading hyphen", "-work", true},
		{"trailing underscore", "work_", true},
		{"dot", "work.vm", true},
		{"single hyphen", "-", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1GB", 1 << 30, false},
		{"512MB", 512 << 20, false},
		{"2TB", 2 << 40, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(f *File)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(f *File) {},
		},
		{
			name:    "no pools",
			modify:  func(f *File) { f.Pools = nil },
			wantErr: "at least one pools entry is required",
		},
		{
			name: "duplicate pool",
			modify: func(f *File) {
				f.Pools = append(f.Pools, f.Pools[0])
			},
			wantErr: "duplicate pool name",
		},
		{
			name:    "missing volume group",
			modify:  func(f *File) { f.Pools[0].VolumeGroup = "" },
			wantErr: "volume_group is required",
		},
		{
			name:    "bad thin pool",
			modify:  func(f *File) { f.Pools[0].ThinPool = "vm pool" },
			wantErr: "thin_pool contains characters",
		},
		{
			name:    "negative pool retention",
			modify:  func(f *File) { f.Pools[0].RevisionsToKeep = intPtr(-1) },
			wantErr: "revisions_to_keep must be >= 0",
		},
		{
			name:    "unknown pool",
			modify:  func(f *File) { f.Volumes[0].Pool = "other" },
			wantErr: `unknown pool "other"`,
		},
		{
			name: "duplicate volume",
			modify: func(f *File) {
				f.Volumes = append(f.Volumes, f.Volumes[0])
			},
			wantErr: `duplicate volume "fedora-43:root"`,
		},
		{
			name:    "both flags",
			modify:  func(f *File) { f.Volumes[0].SnapOnStart = true },
			wantErr: "cannot specify both",
		},
		{
			name:    "snapshot without source",
			modify:  func(f *File) { f.Volumes[1].Source = "" },
			wantErr: "snap_on_start requires a source",
		},
		{
			name:    "source on volatile",
			modify:  func(f *File) { f.Volumes[3].Source = "fedora-43:root" },
			wantErr: "source is only used with",
		},
		{
			name:    "undeclared source",
			modify:  func(f *File) { f.Volumes[1].Source = "fedora-42:root" },
			wantErr: `source "fedora-42:root" is not declared`,
		},
		{
			name:    "malformed source",
			modify:  func(f *File) { f.Volumes[1].Source = "fedora-43" },
			wantErr: "invalid vm:volume format",
		},
		{
			name:    "self source",
			modify:  func(f *File) { f.Volumes[2].Source = "work:private" },
			wantErr: "volume cannot be its own source",
		},
		{
			name:    "persistent without size",
			modify:  func(f *File) { f.Volumes[0].Size = "" },
			wantErr: "size is required",
		},
		{
			name:    "invalid size",
			modify:  func(f *File) { f.Volumes[0].Size = "big" },
			wantErr: "invalid size",
		},
		{
			name:    "vid without volume group",
			modify:  func(f *File) { f.Volumes[0].VID = "vm-fedora-root" },
			wantErr: "vid must be <volume_group>/<name>",
		},
		{
			name:    "bad log level",
			modify:  func(f *File) { f.Log.Level = "loud" },
			wantErr: "log: unsupported level",
		},
		{
			name:    "bad metrics interval",
			modify:  func(f *File) { f.Metrics.Interval = "often" },
			wantErr: "metrics: invalid interval",
		},
		{
			name:    "zero metrics interval",
			modify:  func(f *File) { f.Metrics.Interval = "0s" },
			wantErr: "interval must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFile()
			tt.modify(f)
			err := f.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseVolumeRef(t *testing.T) {
	vmName, volName, err := ParseVolumeRef("fedora-43:root")
	if err != nil {
		t.Fatalf("ParseVolumeRef failed: %v", err)
	}
	if vmName != "fedora-43" || volName != "root" {
		t.Errorf("ParseVolumeRef = (%q, %q), want (fedora-43, root)", vmName, volName)
	}

	for _, ref := range []string{"", "root", ":root", "vm:"} {
		if _, _, err := ParseVolumeRef(ref); err == nil {
			t.Errorf("ParseVolumeRef(%q) expected error", ref)
		}
	}
}

func TestVolumeDecl_Helpers(t *testing.T) {
	v := VolumeDecl{VM: "work", Name: "private", Size: "2GB"}

	if got := v.Ref(); got != "work:private" {
		t.Errorf("Ref() = %q", got)
	}
	if got := v.DefaultVID("qubes_dom0"); got != "qubes_dom0/vm-work-private" {
		t.Errorf("DefaultVID() = %q", got)
	}
	v.VID = "vg1/custom"
	if got := v.DefaultVID("qubes_dom0"); got != "vg1/custom" {
		t.Errorf("DefaultVID() with explicit vid = %q", got)
	}

	size, err := v.SizeBytes()
	if err != nil || size != 2<<30 {
		t.Errorf("SizeBytes() = %d, %v", size, err)
	}
	v.Size = ""
	if size, _ := v.SizeBytes(); size != 0 {
		t.Errorf("SizeBytes() unset = %d, want 0", size)
	}

	if !v.IsRW() {
		t.Error("IsRW() should default to true")
	}
	v.RW = boolPtr(false)
	if v.IsRW() {
		t.Error("IsRW() should honour rw: false")
	}
}

func TestFile_Lookups(t *testing.T) {
	f := validFile()

	if p, ok := f.Pool("default"); !ok || p.ThinPool != "vm-pool" {
		t.Errorf("Pool(default) = %v, %v", p, ok)
	}
	if _, ok := f.Pool("missing"); ok {
		t.Error("Pool(missing) should not be found")
	}
	if v, ok := f.Volume("work:private"); !ok || v.Size != "2GB" {
		t.Errorf("Volume(work:private) = %v, %v", v, ok)
	}
	if _, ok := f.Volume("work:missing"); ok {
		t.Error("Volume(work:missing) should not be found")
	}

	vols := f.VMVolumes("work")
	if len(vols) != 3 {
		t.Fatalf("VMVolumes(work) returned %d volumes, want 3", len(vols))
	}
	if vols[0].Name != "root" || vols[2].Name != "volatile" {
		t.Errorf("VMVolumes(work) order = %s, %s", vols[0].Name, vols[2].Name)
	}
}

func TestMetricsConfig_IntervalDuration(t *testing.T) {
	m := MetricsConfig{}
	d, err := m.IntervalDuration()
	if err != nil || d != 30*time.Second {
		t.Errorf("IntervalDuration() default = %v, %v", d, err)
	}
	m.Interval = "5s"
	if d, _ := m.IntervalDuration(); d != 5*time.Second {
		t.Errorf("IntervalDuration() = %v, want 5s", d)
	}
}

func TestFile_Normalize(t *testing.T) {
	f := &File{
		Pools:   []PoolConfig{{Name: " Default ", VolumeGroup: "QubesVG", ThinPool: "Pool"}},
		Volumes: []VolumeDecl{{VM: "Work", Name: "ROOT", Pool: "DEFAULT", Source: "Fedora:Root"}},
	}
	f.Normalize()

	if f.Pools[0].Name != "default" {
		t.Errorf("pool name = %q", f.Pools[0].Name)
	}
	if f.Pools[0].VolumeGroup != "QubesVG" || f.Pools[0].ThinPool != "Pool" {
		t.Error("lvm names must not be normalized")
	}
	v := f.Volumes[0]
	if v.VM != "work" || v.Name != "root" || v.Pool != "default" || v.Source != "fedora:root" {
		t.Errorf("volume not normalized: %+v", v)
	}
}
