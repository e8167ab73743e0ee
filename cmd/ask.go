package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the advice as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			advice, err := a.advisor.Advise(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(advice)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id returned by a previous turn")
	return cmd
}
