package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

func marshalJSON(kind string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", kind, err)
	}
	return string(data) + "\n", nil
}

// FormatPools formats a list of pools as a JSON array.
func (f *JSONFormatter) FormatPools(pools []PoolInfo) (string, error) {
	if len(pools) == 0 {
		return "[]\n", nil
	}
	return marshalJSON("pools", pools)
}

// FormatVolumes formats a list of volumes as a JSON array.
func (f *JSONFormatter) FormatVolumes(volumes []VolumeInfo) (string, error) {
	if len(volumes) == 0 {
		return "[]\n", nil
	}
	return marshalJSON("volumes", volumes)
}

// FormatRevisions formats revisions as a JSON object keyed by vid:
//
//	{
//	  "vid": "qubes_dom0/vm-work-private",
//	  "revisions": [...]
//	}
func (f *JSONFormatter) FormatRevisions(vid string, revisions []RevisionInfo) (string, error) {
	if revisions == nil {
		revisions = []RevisionInfo{}
	}
	return marshalJSON("revisions", revisionList{VID: vid, Revisions: revisions})
}

type revisionList struct {
	VID       string         `json:"vid" yaml:"vid"`
	Revisions []RevisionInfo `json:"revisions" yaml:"revisions"`
}
