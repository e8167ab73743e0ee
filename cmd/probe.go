package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check the backend and print its capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadAppConfig()
			if err != nil {
				return err
			}

			caps := newProber(conf).Probe(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Capability any  `json:"capability"`
				Rich       bool `json:"rich"`
			}{caps, caps.Rich()})
		},
	}
}
