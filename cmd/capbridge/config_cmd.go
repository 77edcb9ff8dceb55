package main

import (
	"fmt"

	"github.com/danmuck/capbridge/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or check config files",
}

var (
	initFormat string
	initOutput string
	initForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter config file holding every default.

Examples:
  capbridge config init
  capbridge config init --format yaml --output capbridge.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := initOutput
		if target == "" {
			target = "capbridge." + initFormat
		}
		if err := config.WriteTemplate(target, initFormat, initForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", initFormat, target)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the file given by --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("validate: --config is required")
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Validated config at %s\n", cfgFile)
		fmt.Fprintf(out, "  service:     %s\n", cfg.ServiceID)
		fmt.Fprintf(out, "  coordinator: %s (%s)\n", cfg.CoordinatorURL, cfg.SecurityMode)
		fmt.Fprintf(out, "  lamps:       %d\n", len(cfg.Lamps))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&initFormat, "format", "toml", "template format: toml|yaml")
	configInitCmd.Flags().StringVarP(&initOutput, "output", "o", "", "output path (defaults to capbridge.<format>)")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
