package lvm

import "fmt"

// VolumeType is the first lv_attr character.
type VolumeType rune

const (
	VolumeTypeOrigin           VolumeType = 'o'
	VolumeTypeSnapshot         VolumeType = 's'
	VolumeTypeVirtual          VolumeType = 'v'
	VolumeTypeThinVolume       VolumeType = 'V'
	VolumeTypeThinPool         VolumeType = 't'
	VolumeTypeThinPoolData     VolumeType = 'T'
	VolumeTypeThinPoolMetadata VolumeType = 'e'
	VolumeTypeNone             VolumeType = '-'
)

// State is the fifth lv_attr character.
type State rune

const (
	StateActive          State = 'a'
	StateSuspended       State = 's'
	StateInvalidSnapshot State = 'I'
	StateNone            State = '-'
)

// Attr is a decoded lv_attr, see lvs(8).
type Attr struct {
	VolumeType  VolumeType
	Permissions rune
	Allocation  rune
	Minor       rune
	State       State
	Open        rune
	Target      rune
	Zero        rune
	Partial     rune
	Skip        rune
}

// ParseAttr decodes a raw lv_attr. lvm prints ten characters; shorter
// strings are accepted as long as the state column is present.
func ParseAttr(raw string) (Attr, error) {
	if len(raw) < 5 {
		return Attr{}, fmt.Errorf("%q is an invalid length lv_attr", raw)
	}

	padded := []rune(raw + "----------")
	return Attr{
		VolumeType:  VolumeType(padded[0]),
		Permissions: padded[1],
		Allocation:  padded[2],
		Minor:       padded[3],
		State:       State(padded[4]),
		Open:        padded[5],
		Target:      padded[6],
		Zero:        padded[7],
		Partial:     padded[8],
		Skip:        padded[9],
	}, nil
}

// IsThinPool reports whether the volume is a thin pool.
func (a Attr) IsThinPool() bool {
	return a.VolumeType == VolumeTypeThinPool
}

// IsActive reports whether the volume is active.
func (a Attr) IsActive() bool {
	return a.State == StateActive
}

func (a Attr) String() string {
	return fmt.Sprintf("%c%c%c%c%c%c%c%c%c%c",
		a.VolumeType, a.Permissions, a.Allocation, a.Minor, a.State,
		a.Open, a.Target, a.Zero, a.Partial, a.Skip)
}
