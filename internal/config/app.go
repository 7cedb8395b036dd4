package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/oppsbot/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"OPPSBOT_RUNTIME_PATH" envDefault:".oppsbot"`

	// Transport flags
	EnableCLI bool `env:"ENABLE_CLI" envDefault:"true"`
	Port      int  `env:"OPPSBOT_PORT" envDefault:"8722"`

	// How many transcript rows a turn may pull back in, and the token
	// budget those rows are trimmed to before each model round-trip.
	ContextWindowSize  int `env:"CONTEXT_WINDOW_SIZE" envDefault:"60"`
	ContextTokenBudget int `env:"CONTEXT_TOKEN_BUDGET" envDefault:"12000"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDataFilePath() string {
	return filepath.Join(c.RuntimePath, "opportunities.csv")
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "oppsbot.db")
}
