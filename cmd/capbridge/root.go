package main

import (
	"fmt"

	"github.com/danmuck/capbridge/internal/agent"
	"github.com/danmuck/capbridge/internal/config"
	"github.com/danmuck/capbridge/internal/demo"
	"github.com/danmuck/capbridge/internal/host"
	"github.com/danmuck/capbridge/internal/observability"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "capbridge",
	Short: "Expose host object capabilities to a remote coordinator",
	Long: `capbridge registers host objects as targets, describes their actions and
emitters, and mirrors them to a coordinator over a websocket. Commands from
the coordinator are routed back to the objects.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitLogger("capbridge")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "capbridge %s\n", agent.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.toml, .yaml or .yml)")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads cfgFile, or returns defaults when no file was given.
func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

// buildLamps wraps one demo lamp per configured name.
func buildLamps(names []string) ([]*host.Object, error) {
	objs := make([]*host.Object, 0, len(names))
	for _, name := range names {
		_, obj, err := demo.NewLamp(name)
		if err != nil {
			for _, o := range objs {
				o.Release()
			}
			return nil, fmt.Errorf("lamp %q: %w", name, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
