package main

import (
	"github.com/danmuck/capbridge/internal/agent"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register the configured lamps and bridge them to the coordinator",
	Long: `Run the agent until SIGINT or SIGTERM.

Examples:
  capbridge run
  capbridge run --config capbridge.toml`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hosts, err := buildLamps(cfg.Lamps)
	if err != nil {
		return err
	}

	scfg := agent.DefaultServiceConfig()
	scfg.Config = cfg
	scfg.ConfigPath = cfgFile
	svc := agent.NewService(scfg)
	svc.Host(hosts...)

	log.Info().
		Str("service_id", cfg.ServiceID).
		Str("coordinator_url", cfg.CoordinatorURL).
		Str("admin_addr", cfg.AdminAddr).
		Msg("capbridge.run")
	return svc.Run()
}
