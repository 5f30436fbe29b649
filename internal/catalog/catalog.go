// Package catalog holds the immutable set of badge definitions the engine
// evaluates progress against.
package catalog

import (
	"fmt"
	"os"

	"noodlebadge/internal/models"
	"noodlebadge/internal/validation"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Catalog is an ordered, read-only collection of badge definitions.
// A Catalog is safe for concurrent use because nothing mutates it after New.
type Catalog struct {
	badges []models.BadgeDefinition
	index  map[string]int
}

// fileFormat is the on-disk YAML layout
type fileFormat struct {
	Badges []models.BadgeDefinition `yaml:"badges"`
}

// New validates the definitions and builds a catalog. Tiers are copied and
// ordered by ascending level rank.
func New(defs []models.BadgeDefinition) (*Catalog, error) {
	c := &Catalog{
		badges: make([]models.BadgeDefinition, 0, len(defs)),
		index:  make(map[string]int, len(defs)),
	}

	for _, def := range defs {
		if err := validation.ValidateStruct(&def); err != nil {
			return nil, fmt.Errorf("badge %q: %w", def.ID, err)
		}
		if _, dup := c.index[def.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %q", def.ID)
		}

		tiers := slices.Clone(def.Tiers)
		slices.SortFunc(tiers, func(a, b models.BadgeTier) int {
			return a.Level.Rank() - b.Level.Rank()
		})
		if err := checkTiers(tiers); err != nil {
			return nil, fmt.Errorf("badge %q: %w", def.ID, err)
		}
		def.Tiers = tiers

		c.index[def.ID] = len(c.badges)
		c.badges = append(c.badges, def)
	}

	return c, nil
}

// checkTiers enforces unique levels and strictly increasing thresholds by rank
func checkTiers(tiers []models.BadgeTier) error {
	for i := 1; i < len(tiers); i++ {
		prev, cur := tiers[i-1], tiers[i]
		if prev.Level == cur.Level {
			return fmt.Errorf("level %s defined twice", cur.Level)
		}
		if cur.Threshold <= prev.Threshold {
			return fmt.Errorf("threshold for %s (%d) must exceed %s (%d)",
				cur.Level, cur.Threshold, prev.Level, prev.Threshold)
		}
	}
	return nil
}

// MustNew is New for static definitions known to be valid
func MustNew(defs []models.BadgeDefinition) *Catalog {
	c, err := New(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a YAML catalog of the form `badges: [...]`
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.Badges) == 0 {
		return nil, fmt.Errorf("catalog %s defines no badges", path)
	}

	return New(f.Badges)
}

// List returns the definitions in catalog order. The returned slice is a copy.
func (c *Catalog) List() []models.BadgeDefinition {
	out := make([]models.BadgeDefinition, len(c.badges))
	for i, b := range c.badges {
		b.Tiers = slices.Clone(b.Tiers)
		out[i] = b
	}
	return out
}

// Get returns the definition for id
func (c *Catalog) Get(id string) (models.BadgeDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.BadgeDefinition{}, false
	}
	def := c.badges[i]
	def.Tiers = slices.Clone(def.Tiers)
	return def, true
}

// Len returns the number of badges
func (c *Catalog) Len() int {
	return len(c.badges)
}

// Default returns the built-in noodle shop catalog
func Default() *Catalog {
	return MustNew([]models.BadgeDefinition{
		{
			ID:          "explorer",
			Name:        "Explorer",
			Description: "Visit different noodle shops",
			Tiers: []models.BadgeTier{
				{Level: models.LevelBronze, Threshold: 10},
				{Level: models.LevelSilver, Threshold: 25},
				{Level: models.LevelGold, Threshold: 50},
			},
			Icon: "map",
		},
		{
			ID:          "reviewer",
			Name:        "Reviewer",
			Description: "Submit reviews",
			Tiers: []models.BadgeTier{
				{Level: models.LevelBronze, Threshold: 5},
				{Level: models.LevelSilver, Threshold: 15},
				{Level: models.LevelGold, Threshold: 30},
			},
			Icon: "square.and.pencil",
		},
		{
			ID:          "first_to_slurp",
			Name:        "First to Slurp",
			Description: "Be the first to review a restaurant",
			Tiers: []models.BadgeTier{
				{Level: models.LevelBronze, Threshold: 1},
				{Level: models.LevelSilver, Threshold: 5},
				{Level: models.LevelGold, Threshold: 10},
			},
			Icon: "person.crop.circle.badge.checkmark",
		},
	})
}
