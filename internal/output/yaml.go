package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// stream marshals items as a YAML stream (multiple documents separated by ---).
func stream[T any](kind string, items []T) (string, error) {
	var buf bytes.Buffer

	for i, item := range items {
		data, err := yaml.Marshal(item)
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s to YAML: %w", kind, err)
		}

		// Add document separator between items (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatPools formats a list of pools as YAML.
func (f *YAMLFormatter) FormatPools(pools []PoolInfo) (string, error) {
	return stream("pool", pools)
}

// FormatVolumes formats a list of volumes as YAML.
func (f *YAMLFormatter) FormatVolumes(volumes []VolumeInfo) (string, error) {
	return stream("volume", volumes)
}

// FormatRevisions formats revisions as a single YAML document.
func (f *YAMLFormatter) FormatRevisions(vid string, revisions []RevisionInfo) (string, error) {
	if revisions == nil {
		revisions = []RevisionInfo{}
	}
	data, err := yaml.Marshal(revisionList{VID: vid, Revisions: revisions})
	if err != nil {
		return "", fmt.Errorf("failed to marshal revisions to YAML: %w", err)
	}
	return string(data), nil
}
