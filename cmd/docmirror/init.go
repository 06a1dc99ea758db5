package main

import (
	"fmt"

	"github.com/marmos91/docmirror/pkg/config"
	"github.com/spf13/cobra"
)

func runInit(cmd *cobra.Command, path string, force bool) error {
	if path == "" {
		written, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.InitConfigToPath(path, force); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration written to %s\n", path)
	_, _ = fmt.Fprintln(out, "Set auth.password and store.bucket before running 'docmirror start'.")
	return nil
}
