package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/config"
	"github.com/ShayCichocki/gala/internal/connector"
	"github.com/ShayCichocki/gala/internal/files"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/orchestrator"
	"github.com/ShayCichocki/gala/internal/state"
)

// recoveryStaleAfter is how long a running run may go without a message
// before startup recovery parks it as paused.
const recoveryStaleAfter = 15 * time.Minute

// openStore opens and migrates the database, then parks runs left behind by
// a process that died mid-loop.
func openStore(c *config.Config) (*state.DB, error) {
	db, err := state.Open(c.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	recovered, err := state.NewRecoveryManager(db, recoveryStaleAfter).Recover(time.Now())
	if err != nil {
		logging.Component("cli").WarnCtx("run recovery failed", map[string]any{"error": err})
	}
	for _, r := range recovered {
		logging.Component("cli").InfoCtx("recovered interrupted run", map[string]any{"run_id": r.RunID, "event_id": r.EventID})
	}
	return db, nil
}

// newGateway builds the model client. A missing API key is not an error
// here: the returned gateway is nil and starting a run reports
// ErrGatewayNotConfigured.
func newGateway(c *config.Config) (api.Gateway, error) {
	cc := api.ClientConfig{
		Model:          anthropic.Model(c.Model.Name),
		MaxTokens:      c.Model.MaxTokens,
		RequestTimeout: c.Model.RequestTimeout,
	}
	if c.Model.Provider == "bedrock" {
		cc.UseAWSBedrock = true
		cc.AWSRegion = c.Bedrock.Region
		cc.AWSProfile = c.Bedrock.Profile
	} else {
		key, source, err := config.GetAPIKey(c)
		if errors.Is(err, config.ErrNoAPIKey) {
			logging.Component("cli").Warn("no Anthropic API key configured; runs cannot start")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		logging.Component("cli").DebugCtx("using API key", map[string]any{"source": string(source), "key": config.MaskAPIKey(key)})
		cc.APIKey = key
	}

	client, err := api.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

func weightsFromConfig(c *config.Config) orchestrator.Weights {
	return orchestrator.Weights{
		Priority:   c.Selector.PriorityWeight,
		DueSoon:    c.Selector.DueSoonBonus,
		DueUrgent:  c.Selector.DueUrgentBonus,
		InProgress: c.Selector.InProgressBonus,
	}
}

// app bundles everything a command needs to orchestrate events.
type app struct {
	db       *state.DB
	gateway  api.Gateway
	registry *connector.Registry
	manager  *orchestrator.Manager
}

// newApp wires store, gateway, connectors and the orchestrator manager.
// obs may be nil.
func newApp(ctx context.Context, c *config.Config, obs orchestrator.Observer) (*app, error) {
	db, err := openStore(c)
	if err != nil {
		return nil, err
	}
	gateway, err := newGateway(c)
	if err != nil {
		db.Close()
		return nil, err
	}
	registry, err := connector.LoadRegistry(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load connectors: %w", err)
	}
	if err := registry.Register(connector.NewTaskDocuments(db, time.Now)); err != nil {
		registry.Close()
		db.Close()
		return nil, fmt.Errorf("register task documents: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithDispatcher(registry),
		orchestrator.WithFiles(files.NewDiskWriter(c.Files.Dir)),
		orchestrator.WithMetrics(orchestrator.DefaultMetrics()),
		orchestrator.WithWeights(weightsFromConfig(c)),
		orchestrator.WithMaxRounds(c.Orchestrator.MaxRounds),
		orchestrator.WithCallTimeout(c.Model.RequestTimeout),
	}
	if obs != nil {
		opts = append(opts, orchestrator.WithObserver(obs))
	}
	manager, err := orchestrator.NewManager(db, gateway, c.Orchestrator.HistoryCacheSize, opts...)
	if err != nil {
		registry.Close()
		db.Close()
		return nil, err
	}
	return &app{db: db, gateway: gateway, registry: registry, manager: manager}, nil
}

// close shuts the manager down, waiting up to timeout for loops to return.
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.manager.Shutdown(ctx); err != nil {
		logging.Component("cli").WarnCtx("shutdown timed out", map[string]any{"error": err})
	}
	a.registry.Close()
	a.db.Close()
}

// tokens reports usage when the gateway tracks it.
func (a *app) tokens() (input, output int64, cost float64, ok bool) {
	client, isClient := a.gateway.(*api.Client)
	if !isClient {
		return 0, 0, 0, false
	}
	in, out := client.Tracker().Total()
	return in, out, client.Tracker().Cost(), true
}
