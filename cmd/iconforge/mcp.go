package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iconforge/iconforge/pkg/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve iconforge tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := mcp.Deps{
				Generator: a.orch,
				Cache:     a.cache,
				Logger:    a.logger,
			}
			if a.history != nil {
				deps.History = a.history
			}
			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
