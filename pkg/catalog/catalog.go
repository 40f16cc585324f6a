// Package catalog loads capability and paradox definitions from JSON or
// YAML files and resolves them into validated scenarios.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snow-ghost/llmbench/core"
)

// Config names the scenario files. Either path may be empty.
type Config struct {
	CapabilitiesPath string
	ParadoxesPath    string
	CacheSize        int
}

// Catalog resolves scenarios from files, reparsing a file only when its
// modification time or size changes.
type Catalog struct {
	config Config
	cache  *Cache
}

// ErrUnknownScenario is wrapped by lookups of ids no file defines.
var ErrUnknownScenario = errors.New("unknown scenario")

var _ core.ScenarioSource = (*Catalog)(nil)

// New creates a catalog over the configured files.
func New(config Config) (*Catalog, error) {
	cache, err := NewCache(config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Catalog{config: config, cache: cache}, nil
}

// Capabilities returns the capability scenarios in file order.
func (c *Catalog) Capabilities(ctx context.Context) ([]core.Scenario, error) {
	return c.load(ctx, c.config.CapabilitiesPath, decodeCapabilities)
}

// Paradoxes returns the paradox scenarios in file order.
func (c *Catalog) Paradoxes(ctx context.Context) ([]core.Scenario, error) {
	return c.load(ctx, c.config.ParadoxesPath, decodeParadoxes)
}

// Scenarios returns capabilities followed by paradoxes.
func (c *Catalog) Scenarios(ctx context.Context) ([]core.Scenario, error) {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	pars, err := c.Paradoxes(ctx)
	if err != nil {
		return nil, err
	}
	return append(caps, pars...), nil
}

// Scenario looks a scenario up by id, capabilities first.
func (c *Catalog) Scenario(ctx context.Context, id string) (core.Scenario, error) {
	for _, typ := range []core.ScenarioType{core.ScenarioCapability, core.ScenarioParadox} {
		s, err := c.Lookup(ctx, typ, id)
		if !errors.Is(err, ErrUnknownScenario) {
			return s, err
		}
	}
	return core.Scenario{}, unknownScenario(id)
}

// Lookup resolves id among scenarios of one type.
func (c *Catalog) Lookup(ctx context.Context, typ core.ScenarioType, id string) (core.Scenario, error) {
	var (
		scenarios []core.Scenario
		err       error
	)
	switch typ {
	case core.ScenarioCapability:
		scenarios, err = c.Capabilities(ctx)
	case core.ScenarioParadox:
		scenarios, err = c.Paradoxes(ctx)
	default:
		return core.Scenario{}, core.Newf(core.EValidation, "unknown scenario type %q", typ)
	}
	if err != nil {
		return core.Scenario{}, err
	}
	for _, s := range scenarios {
		if s.ID == id {
			return s, nil
		}
	}
	return core.Scenario{}, unknownScenario(id)
}

// Stats returns cache statistics
func (c *Catalog) Stats() CacheStats {
	return c.cache.Stats()
}

func (c *Catalog) load(ctx context.Context, path string, decode func(string, []byte) ([]core.Scenario, error)) ([]core.Scenario, error) {
	if path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scenario file: %w", err)
	}

	key := CacheKey{Path: abs, ModTime: info.ModTime(), Size: info.Size()}
	scenarios, err := c.cache.GetOrLoad(key, func() ([]core.Scenario, error) {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario file: %w", err)
		}
		return decode(abs, data)
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.Scenario, len(scenarios))
	copy(out, scenarios)
	return out, nil
}

func unknownScenario(id string) error {
	return core.Wrap(core.EValidation, fmt.Sprintf("unknown scenario %q", id), ErrUnknownScenario)
}
