package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sandevgo/oppsbot/internal/config"
	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/internal/providers/llm"
	"github.com/sandevgo/oppsbot/internal/providers/tools"
	"github.com/sandevgo/oppsbot/internal/service/agent"
	"github.com/sandevgo/oppsbot/internal/storage/opps"
	"github.com/sandevgo/oppsbot/internal/storage/sqlite"
	"github.com/sandevgo/oppsbot/internal/transport/cli"
	"github.com/sandevgo/oppsbot/internal/transport/ws"
	"github.com/sandevgo/oppsbot/pkg/log"
	"github.com/sandevgo/oppsbot/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	workCfg := config.NewWorkspaceConfig(ctx)
	if port > 0 {
		appCfg.Port = port
	}

	// 2. Storage
	db, transcripts, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	store, err := opps.NewStore(appCfg.GetDataFilePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open opportunity store")
	}
	logger.Info().Int("opportunities", store.Len()).Str("path", appCfg.GetDataFilePath()).Msg("opportunity store loaded")

	// 3. AI Provider
	aiProvider, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 4. Tools
	registry := tools.NewRegistry(
		tools.NewOpportunities(store),
		tools.NewFilesystem(workCfg.WorkshareFolder),
	)

	// 5. Agent
	ag := agent.NewAgent(appCfg, workCfg, aiProvider, registry, transcripts)

	// 6. Transports
	transports, err := initTransports(appCfg, ag)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	services = append(services, transports...)

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, core.TranscriptRepository, error) {
	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return db, sqlite.NewTranscriptRepo(db), nil
}

func initTransports(cfg *config.AppConfig, ag *agent.Agent) ([]srv.Service, error) {
	services := []srv.Service{ws.NewServer(ag, cfg)}

	if cfg.EnableCLI {
		rl, err := cli.NewReadLine(ag, cfg)
		if err != nil {
			return nil, err
		}
		services = append(services, rl)
	}
	return services, nil
}

func initEnv(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	envFile := ".env"

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", filepath.Clean(envFile)).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
