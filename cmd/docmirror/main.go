package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "docmirror",
	Short: "Documentation hosting backed by an object store",
	Long: `docmirror mirrors a documentation bucket from S3 (or any S3-compatible
store) onto local disk and serves it over HTTP.

Administrators can refresh the mirror or replace it with an uploaded
archive through the authenticated /api/admin routes.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newStartCmd(), newInitCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docmirror %s (commit %s)\n", version, commit)
		},
	}
}

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "Config file to create (default: $XDG_CONFIG_HOME/docmirror/config.yaml)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
