// Package cmd holds the farm-advisor command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/config"
	logx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "farm-advisor",
		Short:        "Conversational farm advisor",
		Long:         "farm-advisor routes farmer messages to specialist roles that gather farm details, recommend crops and plan the farming year.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envFile)
			logConf, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.InitWriter(cmd.ErrOrStderr(), *logConf)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an env file (default ./.env when present)")

	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSetupDBCmd())
	cmd.AddCommand(newProbeCmd())
	return cmd
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// Execute runs the root command and exits the process with its status.
func Execute() {
	os.Exit(execute(newRootCmd()))
}
