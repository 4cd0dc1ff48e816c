// Package instructions holds the fixed catalog of assistant personas.
package instructions

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

// Catalog keys.
const (
	KeyDefault          = "default"
	KeyTenderWriting    = "tender-writing"
	KeySummarization    = "summarization"
	KeyCompetencyMatrix = "competency-matrix"
)

//go:embed catalog.yaml
var embedded []byte

type Entry struct {
	Key          string `yaml:"key"`
	Choice       string `yaml:"choice"`
	Title        string `yaml:"title"`
	Retrieval    bool   `yaml:"retrieval"`
	Instructions string `yaml:"instructions"`
}

type Catalog struct {
	AssistantName string
	Description   string

	entries  []Entry
	byKey    map[string]int
	byChoice map[string]int
}

// catalogFile mirrors catalog.yaml.
type catalogFile struct {
	AssistantName string  `yaml:"assistant_name"`
	Description   string  `yaml:"description"`
	Entries       []Entry `yaml:"entries"`
}

// Parse decodes a catalog document. Keys and choices must be unique and every
// entry needs instruction text.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if strings.TrimSpace(file.AssistantName) == "" {
		return nil, fmt.Errorf("catalog: missing assistant_name")
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("catalog: no entries")
	}

	c := &Catalog{
		AssistantName: strings.TrimSpace(file.AssistantName),
		Description:   strings.TrimSpace(file.Description),
		byKey:         map[string]int{},
		byChoice:      map[string]int{},
	}
	for i, e := range file.Entries {
		e.Key = strings.TrimSpace(e.Key)
		e.Choice = strings.TrimSpace(e.Choice)
		e.Title = strings.TrimSpace(e.Title)
		e.Instructions = strings.TrimSpace(e.Instructions)
		if e.Key == "" {
			return nil, fmt.Errorf("catalog: entry %d has no key", i)
		}
		if e.Instructions == "" {
			return nil, fmt.Errorf("catalog: entry %q has no instructions", e.Key)
		}
		if _, dup := c.byKey[e.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate key %q", e.Key)
		}
		if e.Choice != "" {
			if _, dup := c.byChoice[e.Choice]; dup {
				return nil, fmt.Errorf("catalog: duplicate choice %q", e.Choice)
			}
			c.byChoice[e.Choice] = len(c.entries)
		}
		c.byKey[e.Key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Get returns the entry for key.
func (c *Catalog) Get(key string) (Entry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Lookup maps a sub-menu choice to its entry.
func (c *Catalog) Lookup(choice string) (Entry, bool) {
	i, ok := c.byChoice[strings.TrimSpace(choice)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Keys returns the entry keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// AssistantSpec builds the create request for the entry under key.
func (c *Catalog) AssistantSpec(key, model string) (remote.AssistantSpec, error) {
	e, ok := c.Get(key)
	if !ok {
		return remote.AssistantSpec{}, fmt.Errorf("unknown instruction key %q", key)
	}
	spec := remote.AssistantSpec{
		Name:         c.AssistantName,
		Description:  c.Description,
		Instructions: e.Instructions,
		Model:        model,
	}
	if e.Retrieval {
		spec.Tools = []remote.Tool{remote.ToolFileSearch}
	}
	return spec, nil
}
