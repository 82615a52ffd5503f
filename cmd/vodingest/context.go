package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vodingest/internal/config"
	"vodingest/internal/daemonrun"
	"vodingest/internal/ingest"
	"vodingest/internal/logging"
)

// operator is the identity CLI commands act as. It may see and manage every job.
var operator = ingest.Principal{UserID: "vodingest-cli", Admin: true}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withStack opens the databases and services for the duration of fn. Services
// log nowhere; commands report through their own output.
func (c *commandContext) withStack(ctx context.Context, fn func(*daemonrun.Stack) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stack, err := daemonrun.Open(ctx, cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
