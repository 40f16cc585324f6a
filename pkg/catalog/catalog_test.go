package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/llmbench/core"
)

const capabilitiesJSON = `[
  {
    "id": "arith",
    "title": "Arithmetic",
    "category": "math",
    "promptTemplate": "What is 6*7? Reply with the number only.",
    "evaluation": {"required": [" ^\\d+$ "], "forbidden": ["sorry"], "pass_threshold": 0.8}
  },
  {
    "id": "greeting",
    "title": "Greeting",
    "promptTemplate": "Say hello.",
    "evaluation": {"required": ["hello"], "ignore_case": true}
  }
]`

const paradoxesYAML = `
- id: trolley
  title: Trolley
  category: ethics
  promptTemplate: "Choose:\n{{OPTIONS}}"
  options:
    - {id: 1, label: Pull, description: Pull the lever}
    - {id: 2, label: Wait, description: Do nothing}
    - {id: 3, label: Ask, description: Ask someone else}
- id: lifeboat
  title: Lifeboat
  promptTemplate: "Decide."
  group1Default: Save the many
  group2Default: Save the few
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalogLoadsBothKinds(t *testing.T) {
	dir := t.TempDir()
	cat, err := New(Config{
		CapabilitiesPath: writeFile(t, dir, "capabilities.json", capabilitiesJSON),
		ParadoxesPath:    writeFile(t, dir, "paradoxes.yaml", paradoxesYAML),
	})
	require.NoError(t, err)
	ctx := context.Background()

	caps, err := cat.Capabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, core.ScenarioCapability, caps[0].Type)
	assert.Equal(t, []string{`^\d+$`}, caps[0].Rules.Text.Required)
	assert.Equal(t, 0.8, caps[1].Rules.Text.PassThreshold)
	assert.True(t, caps[1].Rules.Text.IgnoreCase)

	pars, err := cat.Paradoxes(ctx)
	require.NoError(t, err)
	require.Len(t, pars, 2)
	assert.Equal(t, 3, pars[0].Rules.Choice.N())

	binary := pars[1].Rules.Choice.Options
	require.Len(t, binary, 2)
	assert.Equal(t, core.Option{ID: 1, Label: "Option 1", Description: "Save the many"}, binary[0])
	assert.Equal(t, "Save the few", binary[1].Description)

	all, err := cat.Scenarios(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	s, err := cat.Scenario(ctx, "trolley")
	require.NoError(t, err)
	assert.Equal(t, core.ScenarioParadox, s.Type)

	_, err = cat.Scenario(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.True(t, core.IsCode(err, core.EValidation))
}

func TestCatalogRejectsInvalidEntries(t *testing.T) {
	tests := map[string]struct {
		file    string
		content string
	}{
		"not a list":           {"c.json", `{"id": "x"}`},
		"no required patterns": {"c.json", `[{"id":"a","title":"A","promptTemplate":"p","evaluation":{"required":[]}}]`},
		"zero threshold":       {"c.json", `[{"id":"a","title":"A","promptTemplate":"p","evaluation":{"required":["x"],"pass_threshold":0}}]`},
		"blank pattern":        {"c.json", `[{"id":"a","title":"A","promptTemplate":"p","evaluation":{"required":["  "]}}]`},
		"bad regex":            {"c.json", `[{"id":"a","title":"A","promptTemplate":"p","evaluation":{"required":["("]}}]`},
		"wrong type":           {"c.json", `[{"id":"a","title":"A","type":"paradox","promptTemplate":"p","evaluation":{"required":["x"]}}]`},
		"duplicate id": {"c.json", `[
			{"id":"a","title":"A","promptTemplate":"p","evaluation":{"required":["x"]}},
			{"id":"a","title":"B","promptTemplate":"q","evaluation":{"required":["y"]}}]`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cat, err := New(Config{CapabilitiesPath: writeFile(t, t.TempDir(), tt.file, tt.content)})
			require.NoError(t, err)
			_, err = cat.Capabilities(context.Background())
			assert.True(t, core.IsCode(err, core.EValidation), "got %v", err)
		})
	}
}

func TestCatalogRejectsInvalidParadoxes(t *testing.T) {
	tests := map[string]string{
		"one option":      "- {id: p, title: P, promptTemplate: t, options: [{id: 1, label: A, description: a}]}",
		"five options":    "- {id: p, title: P, promptTemplate: t, options: [{id: 1}, {id: 2}, {id: 3}, {id: 4}, {id: 5}]}",
		"gap in ids":      "- {id: p, title: P, promptTemplate: t, options: [{id: 1}, {id: 3}]}",
		"missing options": "- {id: p, title: P, promptTemplate: t, group1Default: only one}",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cat, err := New(Config{ParadoxesPath: writeFile(t, t.TempDir(), "p.yml", content)})
			require.NoError(t, err)
			_, err = cat.Paradoxes(context.Background())
			assert.True(t, core.IsCode(err, core.EValidation), "got %v", err)
		})
	}
}

func TestCatalogCachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capabilities.json", capabilitiesJSON)
	cat, err := New(Config{CapabilitiesPath: path})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cat.Capabilities(ctx)
	require.NoError(t, err)
	_, err = cat.Capabilities(ctx)
	require.NoError(t, err)

	stats := cat.Stats()
	assert.Equal(t, int64(1), stats.Loads)
	assert.Equal(t, int64(1), stats.Hits)

	one := `[{"id":"solo","title":"Solo","promptTemplate":"p","evaluation":{"required":["x"]}}]`
	require.NoError(t, os.WriteFile(path, []byte(one), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	caps, err := cat.Capabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "solo", caps[0].ID)
	assert.Equal(t, int64(2), cat.Stats().Loads)
}

func TestCatalogConcurrentLoads(t *testing.T) {
	cat, err := New(Config{CapabilitiesPath: writeFile(t, t.TempDir(), "c.json", capabilitiesJSON)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caps, err := cat.Capabilities(context.Background())
			assert.NoError(t, err)
			assert.Len(t, caps, 2)
		}()
	}
	wg.Wait()

	stats := cat.Stats()
	assert.LessOrEqual(t, stats.Loads, int64(16))
	assert.Equal(t, int64(16), stats.Hits+stats.Misses)
}

func TestCatalogReturnsCopies(t *testing.T) {
	cat, err := New(Config{CapabilitiesPath: writeFile(t, t.TempDir(), "c.json", capabilitiesJSON)})
	require.NoError(t, err)
	ctx := context.Background()

	caps, err := cat.Capabilities(ctx)
	require.NoError(t, err)
	caps[0] = core.Scenario{ID: "mutated"}

	again, err := cat.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, "arith", again[0].ID)
}

func TestCatalogEmptyPaths(t *testing.T) {
	cat, err := New(Config{})
	require.NoError(t, err)
	all, err := cat.Scenarios(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
