package main

import (
	"strings"

	"murmur/internal/client"
	"murmur/internal/config"
)

// commandContext carries shared flag state and the lazily loaded
// configuration across subcommands.
type commandContext struct {
	configFlag *string
	serverFlag *string

	cfg *config.Config
}

func newCommandContext(configFlag, serverFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, serverFlag: serverFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// serverURL prefers the --server flag over the configured URL.
func (c *commandContext) serverURL() string {
	if s := strings.TrimSpace(*c.serverFlag); s != "" {
		return s
	}
	if c.cfg != nil {
		return c.cfg.Client.ServerURL
	}
	return ""
}

func (c *commandContext) apiClient() (*client.APIClient, error) {
	if _, err := c.ensureConfig(); err != nil {
		return nil, err
	}
	return client.NewAPIClient(c.serverURL())
}
