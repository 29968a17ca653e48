package output

import (
	"sort"
	"time"

	"github.com/jbweber/strata/internal/revision"
	"github.com/jbweber/strata/internal/status"
	"github.com/jbweber/strata/internal/storage"
)

// PoolInfo is the printable view of a pool.
type PoolInfo struct {
	Name            string `json:"name" yaml:"name"`
	ID              string `json:"id" yaml:"id"`
	Size            int64  `json:"size" yaml:"size"`
	Usage           int64  `json:"usage" yaml:"usage"`
	RevisionsToKeep int    `json:"revisionsToKeep" yaml:"revisionsToKeep"`
	Volumes         int    `json:"volumes" yaml:"volumes"`
}

// VolumeInfo is the printable view of a volume.
type VolumeInfo struct {
	VID       string       `json:"vid" yaml:"vid"`
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Pool      string       `json:"pool" yaml:"pool"`
	Kind      string       `json:"kind" yaml:"kind"`
	Phase     status.Phase `json:"phase" yaml:"phase"`
	RW        bool         `json:"rw" yaml:"rw"`
	Size      int64        `json:"size" yaml:"size"`
	Usage     int64        `json:"usage" yaml:"usage"`
	Source    string       `json:"source,omitempty" yaml:"source,omitempty"`
	Revisions int          `json:"revisions" yaml:"revisions"`
}

// RevisionInfo is one older revision of a volume.
type RevisionInfo struct {
	ID      string    `json:"id" yaml:"id"`
	Created string    `json:"created" yaml:"created"`
	Time    time.Time `json:"-" yaml:"-"`
}

// Volume kinds.
const (
	KindVolatile   = "volatile"
	KindPersistent = "persistent"
	KindSnapshot   = "snapshot"
)

// NewPoolInfo builds a PoolInfo from a pool. Sizes come from the pool's
// cache, so callers should refresh first.
func NewPoolInfo(p *storage.Pool) PoolInfo {
	return PoolInfo{
		Name:            p.Name(),
		ID:              p.ID(),
		Size:            p.Size(),
		Usage:           p.Usage(),
		RevisionsToKeep: p.RevisionsToKeep(),
		Volumes:         len(p.ListVolumes()),
	}
}

// NewVolumeInfo builds a VolumeInfo from a volume.
func NewVolumeInfo(v *storage.Volume) VolumeInfo {
	info := VolumeInfo{
		VID:       v.VID(),
		Name:      v.Name(),
		Pool:      v.Pool().Name(),
		Kind:      kindOf(v),
		Phase:     status.Of(v),
		RW:        v.RW(),
		Size:      v.Size(),
		Usage:     v.Usage(),
		Revisions: len(v.Revisions()),
	}
	if src := v.Source(); src != nil {
		info.Source = src.VID()
	}
	return info
}

// NewRevisionInfo lists the older revisions of v, oldest first.
func NewRevisionInfo(v *storage.Volume) []RevisionInfo {
	revs := v.Revisions()
	ids := make([]string, 0, len(revs))
	for id := range revs {
		ids = append(ids, id)
	}
	revision.Sort(ids)

	out := make([]RevisionInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, RevisionInfo{ID: id, Created: revision.ISODate(revs[id]), Time: revs[id]})
	}
	return out
}

func kindOf(v *storage.Volume) string {
	switch {
	case v.SnapOnStart():
		return KindSnapshot
	case v.SaveOnStop():
		return KindPersistent
	}
	return KindVolatile
}

// SortVolumes orders volumes by vid.
func SortVolumes(volumes []VolumeInfo) {
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].VID < volumes[j].VID })
}

// now is swapped in tests.
var now = time.Now
