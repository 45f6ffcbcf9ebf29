package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shliew97/frappe-whatsapp/cmd/mainconfig"
	"github.com/shliew97/frappe-whatsapp/internal/app/bootstrap"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/internal/drafts"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// app holds the collaborators commands resolve lazily, so tests can swap them.
type app struct {
	in      io.Reader
	out     io.Writer
	config  func() *appconfig.Config
	logger  func(cfg *appconfig.Config) *logging.Logger
	drafts  func(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (drafts.Store, error)
	library func(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.KnowledgeRepository, error)
}

func defaultApp() *app {
	return &app{
		in:     os.Stdin,
		out:    os.Stdout,
		config: appconfig.Load,
		logger: func(cfg *appconfig.Config) *logging.Logger {
			// Keep stdout for command output.
			return logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: "text", Output: os.Stderr})
		},
		drafts:  openDraftStore,
		library: openKnowledge,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operate the WhatsApp booking gateway: inspect drafts, load knowledge, simulate conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)

	root.AddCommand(newDraftCmd(a))
	root.AddCommand(newKnowledgeCmd(a))
	root.AddCommand(newSimulateCmd(a))
	return root
}

func openDraftStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (drafts.Store, error) {
	awsCfg, err := mainconfig.MaybeLoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bootstrap.BuildDraftStore(cfg, bootstrap.StoreDeps{
		Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Postgres: bootstrap.BuildPostgresPool(ctx, cfg, logger),
		AWS:      awsCfg,
	}, logger)
}

func openKnowledge(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.KnowledgeRepository, error) {
	client := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		return nil, fmt.Errorf("knowledge requires a reachable redis at %q", cfg.RedisAddr)
	}
	return conversation.NewRedisKnowledgeRepository(client), nil
}
