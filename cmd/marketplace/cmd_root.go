package main

import (
	"io"

	"github.com/healthchain/marketplace/common/config"
	"github.com/spf13/cobra"
)

const serviceName = "marketplace"

var configFile string

// Run executes the command line against os.Args
func Run(out, stderr io.Writer) error {
	return RootCommand(out, stderr).Execute()
}

// RootCommand builds the command tree. Configuration is loaded once before
// any subcommand runs.
func RootCommand(out, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Healthcare dataset marketplace API",
		SilenceErrors: true,
	}

	cmd.SetOut(out)
	cmd.SetErr(stderr)
	cmd.Root().SilenceUsage = true

	cfg := &config.Config{}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(serviceName, configFile)
		if err != nil {
			return err
		}
		*cfg = *loaded
		return nil
	}

	cmd.AddCommand(NewCmdServe(cfg))
	cmd.AddCommand(NewCmdConfig(out, cfg))
	cmd.AddCommand(NewCmdVersion(out, cfg))

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (TOML)")

	return cmd
}
