package main

import (
	"fmt"
	"path/filepath"

	"github.com/nvandessel/conviction/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

The server exposes tools to run simulations (conviction_simulate) and to
inspect recorded runs (conviction_runs, conviction_steps,
conviction_network), plus a conviction://runs/{id} resource.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hs, err := openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			auditDir := ""
			if !noAudit {
				auditDir = filepath.Dir(hs.Path())
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "conviction",
				Version:  version,
				Store:    hs,
				Base:     cfg,
				AuditDir: auditDir,
				Logger:   newLogger(cmd, cfg),
			})
			if err != nil {
				hs.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("no-audit", false, "Don't write audit.jsonl next to the history database")

	return cmd
}
