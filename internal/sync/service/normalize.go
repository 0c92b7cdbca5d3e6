package service

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var mappingsYAML []byte

// fieldMappingSet is one versioned alias table for one entity type.
type fieldMappingSet struct {
	Entity       EntityType        `yaml:"entity"`
	SinceVersion int               `yaml:"sinceVersion"`
	Fields       map[string]string `yaml:"fields"`
}

type mappingFile struct {
	Mappings []fieldMappingSet `yaml:"mappings"`
}

// Normalizer rewrites client-version-specific field names to canonical
// keys. The mapping table is data (embedded YAML), so a new device quirk
// is an additive configuration change.
//
// Normalization MUST run after ad-hoc detection has snapshotted raw
// fields: it renames the identifier field, which would corrupt the
// detection check.
type Normalizer struct {
	sets map[EntityType][]fieldMappingSet
}

// NewNormalizer loads the embedded versioned mapping table.
func NewNormalizer() (*Normalizer, error) {
	var file mappingFile
	if err := yaml.Unmarshal(mappingsYAML, &file); err != nil {
		return nil, fmt.Errorf("normalizer: parse mapping table: %w", err)
	}

	sets := make(map[EntityType][]fieldMappingSet)
	for _, set := range file.Mappings {
		if set.Entity == "" || len(set.Fields) == 0 {
			return nil, fmt.Errorf("normalizer: mapping set missing entity or fields")
		}
		sets[set.Entity] = append(sets[set.Entity], set)
	}

	// Later versions override earlier ones during application.
	for et := range sets {
		sort.SliceStable(sets[et], func(i, j int) bool {
			return sets[et][i].SinceVersion < sets[et][j].SinceVersion
		})
	}

	return &Normalizer{sets: sets}, nil
}

// Normalize returns a copy of raw with alias keys renamed to canonical
// keys, applying every mapping set whose sinceVersion the client meets.
// Canonical keys already present are left untouched unless an alias
// explicitly shadows them.
func (n *Normalizer) Normalize(entity EntityType, clientVersion int, raw map[string]any) map[string]any {
	if clientVersion < 1 {
		clientVersion = 1
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for _, set := range n.sets[entity] {
		if clientVersion < set.SinceVersion {
			continue
		}
		for alias, canonical := range set.Fields {
			if alias == canonical {
				continue
			}
			if value, ok := out[alias]; ok {
				out[canonical] = value
				delete(out, alias)
			}
		}
	}

	return out
}
