package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"noodlebadge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	require.Equal(t, 3, c.Len())

	ids := make([]string, 0, c.Len())
	for _, b := range c.List() {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"explorer", "reviewer", "first_to_slurp"}, ids)

	explorer, ok := c.Get("explorer")
	require.True(t, ok)
	assert.Equal(t, 50, explorer.MaxThreshold())
	assert.Equal(t, "map", explorer.Icon)
}

func TestNewSortsTiersByRank(t *testing.T) {
	c, err := New([]models.BadgeDefinition{{
		ID:   "slurper",
		Name: "Slurper",
		Tiers: []models.BadgeTier{
			{Level: models.LevelGold, Threshold: 30},
			{Level: models.LevelBronze, Threshold: 3},
			{Level: models.LevelSilver, Threshold: 10},
		},
	}})
	require.NoError(t, err)

	def, ok := c.Get("slurper")
	require.True(t, ok)
	assert.Equal(t, models.LevelBronze, def.Tiers[0].Level)
	assert.Equal(t, models.LevelGold, def.Tiers[2].Level)
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []models.BadgeDefinition
	}{
		{
			name: "non increasing thresholds",
			defs: []models.BadgeDefinition{{
				ID: "a", Name: "A",
				Tiers: []models.BadgeTier{
					{Level: models.LevelBronze, Threshold: 10},
					{Level: models.LevelSilver, Threshold: 10},
				},
			}},
		},
		{
			name: "duplicate level",
			defs: []models.BadgeDefinition{{
				ID: "a", Name: "A",
				Tiers: []models.BadgeTier{
					{Level: models.LevelBronze, Threshold: 1},
					{Level: models.LevelBronze, Threshold: 2},
				},
			}},
		},
		{
			name: "duplicate id",
			defs: []models.BadgeDefinition{
				{ID: "a", Name: "A", Tiers: []models.BadgeTier{{Level: models.LevelBronze, Threshold: 1}}},
				{ID: "a", Name: "A2", Tiers: []models.BadgeTier{{Level: models.LevelBronze, Threshold: 1}}},
			},
		},
		{
			name: "unknown level",
			defs: []models.BadgeDefinition{{
				ID: "a", Name: "A",
				Tiers: []models.BadgeTier{{Level: "platinum", Threshold: 1}},
			}},
		},
		{
			name: "missing tiers",
			defs: []models.BadgeDefinition{{ID: "a", Name: "A"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestListReturnsCopies(t *testing.T) {
	c := Default()

	list := c.List()
	list[0].Tiers[0].Threshold = 999

	def, _ := c.Get(list[0].ID)
	assert.Equal(t, 10, def.Tiers[0].Threshold)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badges.yaml")
	content := `badges:
  - id: ramen_runner
    name: Ramen Runner
    description: Log ramen visits
    icon: flame
    tiers:
      - level: bronze
        threshold: 2
      - level: silver
        threshold: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	def, ok := c.Get("ramen_runner")
	require.True(t, ok)
	assert.Equal(t, "Ramen Runner", def.Name)
	assert.Len(t, def.Tiers, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
