package connector

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/gala/internal/config"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/tools"
)

// FromConfig builds the connector described by cfg. It is not initialized.
func FromConfig(id string, cfg config.ConnectorConfig) (Connector, error) {
	switch cfg.Type {
	case "mcp":
		if cfg.Command == "" {
			return nil, fmt.Errorf("connector %s: mcp connectors need a command", id)
		}
		return NewMCPConnector(id, cfg.Enabled, CommandTransport(cfg.Command, cfg.Args...)), nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("connector %s: http connectors need a url", id)
		}
		specs := make([]tools.Spec, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			props := t.Properties
			if props == nil {
				props = map[string]any{}
			}
			specs = append(specs, tools.Spec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: tools.Schema{Properties: props, Required: t.Required},
			})
		}
		return NewHTTPConnector(id, cfg.URL, cfg.Enabled, specs), nil
	default:
		return nil, fmt.Errorf("connector %s: unknown type %q", id, cfg.Type)
	}
}

// LoadRegistry builds and initializes every configured connector. A
// connector that fails to build or initialize is logged and skipped so one
// broken integration does not prevent runs; tool collisions are fatal.
func LoadRegistry(ctx context.Context, cfg *config.Config) (*Registry, error) {
	log := logging.Component("connector")
	reg := NewRegistry()

	for _, id := range cfg.ConnectorIDs() {
		cc := cfg.Connectors[id]
		c, err := FromConfig(id, cc)
		if err != nil {
			log.WarnCtx("skipping connector", map[string]any{"connector": id, "error": err})
			continue
		}
		if cc.Enabled {
			if err := c.Initialize(ctx, cc.Secrets); err != nil {
				log.WarnCtx("connector failed to initialize", map[string]any{"connector": id, "error": err})
				continue
			}
		}
		if err := reg.Register(c); err != nil {
			reg.Close()
			return nil, err
		}
	}
	return reg, nil
}
