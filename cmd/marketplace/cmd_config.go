package main

import (
	"fmt"
	"io"

	"github.com/healthchain/marketplace/common/config"
	"github.com/spf13/cobra"
)

// NewCmdConfig prints the effective configuration with secrets redacted
func NewCmdConfig(out io.Writer, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(out, cfg.String())
			return err
		},
	}
}

// NewCmdVersion prints the configured service version
func NewCmdVersion(out io.Writer, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(out, cfg.Service.Version)
			return err
		},
	}
}
