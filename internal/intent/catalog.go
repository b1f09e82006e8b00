// Package intent resolves free-text customer requests to catalog intents and
// maps intents to the provider service labels present in live data.
package intent

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog_es.yaml
var defaultCatalog []byte

// Definition is one catalog intent.
type Definition struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Aliases  []string `yaml:"aliases"`
	Keywords []string `yaml:"keywords"`
}

type catalogFile struct {
	Intents []Definition `yaml:"intents"`
}

// Catalog is the immutable, ordered set of intents. Order matters for tie-breaking.
type Catalog struct {
	intents []Definition
	byID    map[string]int
	byLabel map[string]string
}

// DefaultCatalog parses the embedded Spanish catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalogFile parses a catalog from path, or the embedded one when path is empty.
func LoadCatalogFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open intent catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog parses YAML of the form {intents: [{id, label, aliases, keywords}]}.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode intent catalog: %w", err)
	}
	return NewCatalog(file.Intents)
}

// NewCatalog validates definitions and builds lookup tables.
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("intent catalog is empty")
	}
	c := &Catalog{
		intents: make([]Definition, 0, len(defs)),
		byID:    make(map[string]int, len(defs)),
		byLabel: make(map[string]string, len(defs)),
	}
	for _, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		d.Label = strings.TrimSpace(d.Label)
		if d.ID == "" {
			return nil, fmt.Errorf("intent without id")
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate intent id %q", d.ID)
		}
		d.Aliases = compact(d.Aliases)
		d.Keywords = compact(d.Keywords)
		c.byID[d.ID] = len(c.intents)
		if d.Label != "" {
			c.byLabel[d.Label] = d.ID
		}
		c.intents = append(c.intents, d)
	}
	return c, nil
}

// Definitions returns the intents in catalog order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.intents...)
}

// IDs returns the allowlist of intent identifiers in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.intents))
	for i, d := range c.intents {
		ids[i] = d.ID
	}
	return ids
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.intents[i], true
}

// Has reports whether id is in the allowlist.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Label returns the display label for id, or "" when unknown.
func (c *Catalog) Label(id string) string {
	d, _ := c.Get(id)
	return d.Label
}

// IDForLabel maps a clarification label back to its intent.
func (c *Catalog) IDForLabel(label string) (string, bool) {
	id, ok := c.byLabel[strings.TrimSpace(label)]
	return id, ok
}

// position is used for deterministic ordering of equal scores.
func (c *Catalog) position(id string) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return len(c.intents)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
