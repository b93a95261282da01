package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joseph-ayodele/cardlead/internal/app"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/ledger"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *common.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*common.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = common.LoadConfig(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes to stderr so command output on stdout stays parseable.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return common.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
}

// withApp builds every component for the duration of fn.
func (c *commandContext) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := c.logger()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// withLedger opens only the run ledger, so history commands work without
// service credentials.
func (c *commandContext) withLedger(ctx context.Context, fn func(*ledger.Ledger, *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.Driver == "none" {
		return fmt.Errorf("%w: ledger is disabled", common.ErrConfig)
	}
	logger, err := c.logger()
	if err != nil {
		return err
	}
	l, err := ledger.Open(ctx, ledger.Config{Driver: cfg.Ledger.Driver, DSN: cfg.Ledger.DSN}, logger)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l, logger)
}
