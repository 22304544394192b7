// Package catalog supplies the building templates the constructor places.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridcity/internal/city"
	"github.com/talgya/gridcity/internal/economy"
)

//go:embed buildings.yaml
var defaultCatalog []byte

// Template describes one building design.
type Template struct {
	Name      string                    `yaml:"name"`
	Kind      string                    `yaml:"kind"`
	Level     int                       `yaml:"level"`
	Width     int                       `yaml:"width"`
	Height    int                       `yaml:"height"`
	Consumes  map[economy.Tradeable]int `yaml:"consumes"`
	Produces  map[economy.Tradeable]int `yaml:"produces"`
	Pollution float64                   `yaml:"pollution"`
	Upkeep    int                       `yaml:"upkeep"`

	kind city.Kind
}

// Catalog is a set of templates. Parse and Load return a fresh catalog;
// nothing in this package modifies one afterwards.
type Catalog struct {
	templates []Template

	// ResidentialBuffer overrides the demand buffer of new homes when positive.
	ResidentialBuffer float64
}

type file struct {
	Buildings []Template `yaml:"buildings"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and checks catalog YAML.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	for i := range f.Buildings {
		t := &f.Buildings[i]
		k, err := city.ParseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("building %q: %w", t.Name, err)
		}
		if k == city.KindPowerPlant {
			return nil, fmt.Errorf("building %q: power plants are built with city.NewPowerPlant", t.Name)
		}
		t.kind = k
		t.Width = max(t.Width, 1)
		t.Height = max(t.Height, 1)
		t.Level = max(t.Level, 1)
		for tr, q := range t.Consumes {
			if q < 0 {
				return nil, fmt.Errorf("building %q: negative consumption of %s", t.Name, tr)
			}
		}
		for tr, q := range t.Produces {
			if q < 0 {
				return nil, fmt.Errorf("building %q: negative production of %s", t.Name, tr)
			}
		}
	}
	sort.SliceStable(f.Buildings, func(i, j int) bool { return f.Buildings[i].Name < f.Buildings[j].Name })
	return &Catalog{templates: f.Buildings}, nil
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// Templates returns the templates for zone z at the given level, by name.
func (c *Catalog) Templates(z city.Zone, level int) []Template {
	var out []Template
	for _, t := range c.templates {
		if t.Level == level && zoneOf(t.kind) == z {
			out = append(out, t)
		}
	}
	return out
}

func zoneOf(k city.Kind) city.Zone {
	switch k {
	case city.KindResidential:
		return city.ZoneResidential
	case city.KindCommercial:
		return city.ZoneCommercial
	case city.KindIndustrial:
		return city.ZoneIndustrial
	}
	return city.ZoneNone
}

// Find returns a fresh building for zone z at level, choosing among matching
// templates with pick (which receives the count and returns an index). It
// returns nil when no template matches.
func (c *Catalog) Find(z city.Zone, level int, pick func(n int) int) *city.Building {
	ts := c.Templates(z, level)
	if len(ts) == 0 {
		return nil
	}
	i := 0
	if pick != nil && len(ts) > 1 {
		i = pick(len(ts))
	}
	return c.instantiate(ts[i])
}

// Named builds the template with the given name.
func (c *Catalog) Named(name string) (*city.Building, bool) {
	for _, t := range c.templates {
		if t.Name == name {
			return c.instantiate(t), true
		}
	}
	return nil, false
}

func (c *Catalog) instantiate(t Template) *city.Building {
	b := city.NewBuilding(t.kind)
	b.Name = t.Name
	b.Description = t.Name
	b.Width, b.Height = t.Width, t.Height
	b.Level = t.Level
	b.Pollution = t.Pollution
	b.Upkeep = t.Upkeep
	for tr, q := range t.Consumes {
		b.Consumes[tr] = q
	}
	for tr, q := range t.Produces {
		b.Produces[tr] = q
	}
	if t.kind == city.KindResidential && c.ResidentialBuffer > 0 {
		b.DemandBuffer = c.ResidentialBuffer
	}
	return b
}
