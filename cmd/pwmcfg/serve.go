package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dongho-jung/pwmcfg/internal/devserver"
)

func newServeDemoCmd() *cobra.Command {
	var addr, catalogPath, user string

	cmd := &cobra.Command{
		Use:   "serve-demo",
		Short: "Run an in-memory configuration server for trying the console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := devserver.Options{User: user}
			if catalogPath != "" {
				data, err := os.ReadFile(catalogPath)
				if err != nil {
					return fmt.Errorf("failed to read catalog: %w", err)
				}
				opts.Catalog = data
			}
			srv, err := devserver.New(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "Serving demo configuration on http://%s%s\n", addr, srv.BasePath())
			fmt.Fprintf(out, "Connect with: PWMCFG_SERVER_URL=http://%s pwmcfg\n", addr)
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8085", "listen address")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog file (default: built-in demo catalog)")
	cmd.Flags().StringVar(&user, "user", "", "user recorded for every write")
	return cmd
}
