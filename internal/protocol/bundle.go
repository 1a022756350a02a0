// Package protocol loads clinical protocol bundles: a diagnostic decision graph,
// the recommendation table keyed by terminal node and finding code, and the
// medicine catalog the recommendations draw from.
package protocol

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fertility-cds-server/internal/domain"
)

//go:embed canonical.yaml
var canonicalBundle []byte

// Bundle is one clinical protocol, loaded once and shared read-only.
type Bundle struct {
	Name            string                        `yaml:"name" json:"name"`
	Version         string                        `yaml:"version" json:"version"`
	Graph           domain.DecisionGraph          `yaml:"graph" json:"graph"`
	Recommendations domain.RecommendationTable    `yaml:"recommendations" json:"recommendations"`
	Catalog         []domain.MedicineCatalogEntry `yaml:"catalog" json:"catalog"`
}

// Default returns the built-in infertility workup protocol.
func Default() (*Bundle, error) {
	bundle, err := Parse(canonicalBundle)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in protocol: %w", err)
	}
	return bundle, nil
}

// CanonicalYAML returns the source of the built-in protocol.
func CanonicalYAML() []byte {
	return bytes.Clone(canonicalBundle)
}

// Load reads a bundle from a YAML file. An empty path loads the built-in protocol.
func Load(path string) (*Bundle, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol file %s: %w", path, err)
	}

	bundle, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse protocol file %s: %w", path, err)
	}
	return bundle, nil
}

// Parse decodes a YAML bundle. Unknown keys are rejected. Node ids default to
// the key they are stored under and node kinds are inferred from options.
func Parse(data []byte) (*Bundle, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var bundle Bundle
	if err := dec.Decode(&bundle); err != nil {
		return nil, err
	}

	for id, node := range bundle.Graph.Nodes {
		if node.ID == "" {
			node.ID = id
		}
		if node.Kind == "" {
			node.Kind = domain.NodeQuestion
			if len(node.Options) == 0 {
				node.Kind = domain.NodeTerminal
			}
		}
		bundle.Graph.Nodes[id] = node
	}
	if bundle.Recommendations == nil {
		bundle.Recommendations = domain.RecommendationTable{}
	}

	return &bundle, nil
}

// Problems lists everything wrong with the bundle: graph structure, catalog
// uniqueness and recommendation items that cannot be resolved.
func (b *Bundle) Problems() []string {
	problems := b.Graph.Problems()

	seen := make(map[string]bool, len(b.Catalog))
	for i, entry := range b.Catalog {
		name := strings.TrimSpace(entry.TradeName)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("catalog entry %d has no trade name", i))
		case seen[name]:
			problems = append(problems, fmt.Sprintf("catalog trade name %q is duplicated", name))
		}
		seen[name] = true
		if entry.Price < 0 {
			problems = append(problems, fmt.Sprintf("catalog entry %q has a negative price", name))
		}
	}

	for _, key := range sortedKeys(b.Recommendations) {
		for i, item := range b.Recommendations[key] {
			if strings.TrimSpace(item.TradeName) == "" {
				problems = append(problems, fmt.Sprintf("recommendation %q item %d has no trade name", key, i))
			}
		}
	}

	for _, id := range sortedKeys(b.Graph.Nodes) {
		key := b.Graph.Nodes[id].RecommendationKey
		if key == "" {
			continue
		}
		if _, ok := b.Recommendations[key]; !ok {
			problems = append(problems, fmt.Sprintf("node %q references unknown recommendation %q", id, key))
		}
	}

	return problems
}

// Validate fails when the bundle cannot be navigated at all. In strict mode
// any reported problem is fatal.
func (b *Bundle) Validate(strict bool) error {
	problems := b.Problems()
	if len(problems) == 0 {
		return nil
	}

	if strict {
		return fmt.Errorf("protocol %s has %d problem(s): %s", b.Name, len(problems), strings.Join(problems, "; "))
	}

	if _, ok := b.Graph.Node(b.Graph.StartID); !ok {
		return fmt.Errorf("protocol %s: start node %q: %w", b.Name, b.Graph.StartID, domain.ErrUnknownNode)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
