package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/accounting"
	"github.com/snow-ghost/llmbench/pkg/catalog"
	"github.com/snow-ghost/llmbench/pkg/config"
	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/observability"
	"github.com/snow-ghost/llmbench/pkg/processor"
	"github.com/snow-ghost/llmbench/pkg/providers"
	"github.com/snow-ghost/llmbench/pkg/registry"
	"github.com/snow-ghost/llmbench/pkg/runstore"
	"github.com/snow-ghost/llmbench/pkg/tokens"
)

// app holds the components a command works with. Fields a command did not
// ask for stay nil.
type app struct {
	cfg     *config.AppConfig
	obs     *observability.Manager
	store   *runstore.Store
	catalog *catalog.Catalog
	ledger  *accounting.Manager
	models  *registry.Registry
	client  *providers.Client

	migrated map[string]string
}

type needs struct {
	store    bool
	catalog  bool
	ledger   bool
	provider bool
}

// openApp loads the configuration and builds what the command needs. A
// store is migrated before any command sees it.
func openApp(ctx context.Context, n needs) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if resultsDir != "" {
		cfg.ResultsDir = resultsDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs, err := observability.NewManager(observability.Config{
		ServiceName:    "benchctl",
		ServiceVersion: cfg.AppVersion,
		JaegerEndpoint: cfg.JaegerEndpoint,
		LogLevel:       cfg.LogLevel,
		LogFormat:      cfg.LogFormat,
		LogOutput:      "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	a := &app{cfg: cfg, obs: obs}

	if n.store {
		if a.store, err = runstore.New(cfg.ResultsDir, runstore.WithObservability(obs)); err != nil {
			return nil, a.fail(err)
		}
		if a.migrated, err = a.store.MigrateLegacy(ctx); err != nil {
			return nil, a.fail(err)
		}
		if len(a.migrated) > 0 {
			obs.GetLogger().Info("migrated legacy runs", "count", len(a.migrated))
		}
	}

	if n.catalog {
		a.catalog, err = catalog.New(catalog.Config{
			CapabilitiesPath: cfg.CapabilitiesPath,
			ParadoxesPath:    cfg.ParadoxesPath,
		})
		if err != nil {
			return nil, a.fail(err)
		}
	}

	if n.ledger || n.provider {
		if a.ledger, err = accounting.NewManager(accounting.Config{DBPath: cfg.LedgerPath}); err != nil {
			return nil, a.fail(err)
		}
	}

	if n.provider {
		if a.client, err = a.newClient(); err != nil {
			return nil, a.fail(err)
		}
	}
	return a, nil
}

func (a *app) newClient() (*providers.Client, error) {
	reg, err := registry.NewLoader(a.cfg.ModelsFile).LoadRegistry()
	if err != nil {
		return nil, err
	}
	reg.SetBaseURL(registry.ProviderOpenRouter, a.cfg.OpenRouterBaseURL)
	a.models = reg

	retry := limiter.NewRetryManager(&limiter.RetryConfig{
		MaxRetries:    a.cfg.MaxRetries,
		BaseDelay:     a.cfg.RetryDelay,
		MaxDelay:      limiter.DefaultRetryConfig().MaxDelay,
		BackoffFactor: 2.0,
		Jitter:        a.cfg.RetryJitter,
	})
	protection := limiter.NewProtectionManager(
		retry,
		limiter.NewCircuitBreakerManager(a.obs.BreakerHook()),
		a.cfg.CallTimeout,
		limiter.WithRetryObserver(a.obs.RetryHook),
	)

	factory := providers.NewProviderFactory(providers.WithAppIdentity(providers.AppIdentity{
		Name:    a.cfg.AppName,
		BaseURL: a.cfg.AppBaseURL,
	}))
	return providers.NewClient(reg, factory,
		providers.WithProtection(protection),
		providers.WithObservability(a.obs),
		providers.WithLedger(a.ledger),
		providers.WithTokenizer(tokens.GetDefaultRegistry()),
	), nil
}

// checkModel fails early when model is routed through OpenRouter without
// credentials.
func (a *app) checkModel(model string) error {
	mc, ok := a.models.Resolve(model)
	if !ok {
		return core.Newf(core.EModelNotFound, "model %q is not in the registry", model)
	}
	if mc.Provider == registry.ProviderOpenRouter {
		if err := a.cfg.ValidateSecrets(); err != nil {
			return core.Wrap(core.EAuth, "OpenRouter is not configured", err)
		}
	}
	return nil
}

func (a *app) processor() *processor.Processor {
	return processor.New(a.client, a.store, processor.Config{
		Concurrency:   a.cfg.ConcurrencyLimit,
		RunTimeout:    a.cfg.RunTimeout,
		MaxIterations: a.cfg.MaxIterations,
	}, processor.WithObservability(a.obs))
}

func (a *app) fail(err error) error {
	return errors.Join(err, a.close())
}

func (a *app) close() error {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, a.obs.Shutdown(ctx))
	return errors.Join(errs...)
}

// withApp opens the app for one command and closes it afterwards.
func withApp(ctx context.Context, n needs, fn func(*app) error) (err error) {
	a, err := openApp(ctx, n)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
