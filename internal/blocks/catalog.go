// Package blocks describes the block kinds that can be placed on the canvas:
// their identity, ports and parameter schema.
package blocks

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
	"strategy-builder-go/internal/models"
)

// ErrUnknownBlock is returned for a block kind that is not in the catalog.
var ErrUnknownBlock = errors.New("unknown block kind")

// ParameterType is the value type of a block parameter.
type ParameterType string

const (
	ParameterNumber  ParameterType = "number"
	ParameterEnum    ParameterType = "enum"
	ParameterBoolean ParameterType = "boolean"
	ParameterText    ParameterType = "text"
)

// Port is an input or output of a block.
type Port struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required,omitempty"`
}

// Parameter is one entry of a block's parameter schema.
type Parameter struct {
	Key     string        `yaml:"key" json:"key"`
	Label   string        `yaml:"label" json:"label"`
	Type    ParameterType `yaml:"type" json:"type"`
	Default any           `yaml:"default" json:"default"`
	Min     *float64      `yaml:"min" json:"min,omitempty"`
	Max     *float64      `yaml:"max" json:"max,omitempty"`
	Step    *float64      `yaml:"step" json:"step,omitempty"`
	Options []string      `yaml:"options" json:"options,omitempty"`
	Hint    string        `yaml:"hint" json:"hint,omitempty"`
}

// Definition describes one block kind.
type Definition struct {
	Kind        string `yaml:"kind" json:"kind"`
	Label       string `yaml:"label" json:"label"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
	Ports       struct {
		Inputs  []Port `yaml:"inputs" json:"inputs"`
		Outputs []Port `yaml:"outputs" json:"outputs"`
	} `yaml:"ports" json:"ports"`
	Parameters []Parameter    `yaml:"parameters" json:"parameters"`
	Limits     map[string]int `yaml:"limits" json:"limits"`
}

// Catalog is an immutable set of block definitions.
type Catalog struct {
	SignalTypes []string
	blocks      []Definition
	byKind      map[string]Definition
}

//go:embed catalog.yaml
var defaultCatalog []byte

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("blocks: built-in catalog is invalid: %v", err))
	}
	return c
}

// Parse reads a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var raw struct {
		SignalTypes []string     `yaml:"signal_types"`
		Blocks      []Definition `yaml:"blocks"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse block catalog: %w", err)
	}

	c := &Catalog{
		SignalTypes: raw.SignalTypes,
		blocks:      raw.Blocks,
		byKind:      make(map[string]Definition, len(raw.Blocks)),
	}
	for _, def := range raw.Blocks {
		if def.Kind == "" {
			return nil, errors.New("block definition without kind")
		}
		if _, dup := c.byKind[def.Kind]; dup {
			return nil, fmt.Errorf("duplicate block kind %q", def.Kind)
		}
		c.byKind[def.Kind] = def
	}
	return c, nil
}

// Definitions returns the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Kinds returns the sorted block kinds.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.byKind))
	for k := range c.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Lookup returns the definition for kind.
func (c *Catalog) Lookup(kind string) (Definition, bool) {
	def, ok := c.byKind[kind]
	return def, ok
}

// DefaultParameters returns every parameter key mapped to its default value.
func (d Definition) DefaultParameters() map[string]any {
	params := make(map[string]any, len(d.Parameters))
	for _, p := range d.Parameters {
		params[p.Key] = normalize(p.Default)
	}
	return params
}

// NewNode builds a node of the given kind at position, with id
// "<kind>-<segment>", the catalog label and default parameters.
func (c *Catalog) NewNode(kind string, position models.Position) (models.StrategyNode, error) {
	def, ok := c.Lookup(kind)
	if !ok {
		return models.StrategyNode{}, fmt.Errorf("%w: %s", ErrUnknownBlock, kind)
	}
	p := position
	return models.StrategyNode{
		ID:       models.NewPrefixedID(def.Kind),
		Label:    def.Label,
		Type:     def.Kind,
		Position: &p,
		Metadata: &models.NodeMetadata{
			Description: def.Description,
			Parameters:  def.DefaultParameters(),
		},
	}, nil
}

// normalize turns YAML integers into float64 so values match what a JSON
// round trip of the graph produces.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case nil:
		return ""
	default:
		return v
	}
}
