package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/config"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

func newSetupDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-db",
		Short: "Create the farm advisor tables",
		Long:  "Creates the farmers, farms, recommendations, plans, conversations and messages tables when missing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configx.New[repository.Config]("DB")
			if err != nil {
				return err
			}
			if !conf.Enabled() {
				return errors.New("DB_DSN is required")
			}

			repo, err := repository.Open(*conf)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer repo.Close()

			if err := repo.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database tables ready")
			return nil
		},
	}
}
