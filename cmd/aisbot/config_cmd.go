package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aisbot/aisbot/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration file format",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigPathCmd())
	return cmd
}

// buildConfigSchemaCmd creates "config schema", which emits a JSON Schema
// for the configuration file. Editors use it for completion and validation.
func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

// buildConfigPathCmd creates "config path", which prints the config file
// location the other commands would use.
func buildConfigPathCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the resolved config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.Resolve(configPath))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
