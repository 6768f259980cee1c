package main

import (
	"github.com/dvloznov/csv-intake/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) ingestCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Validate a CSV file and store the upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					c.log.Error().Err(err).Msg("Failed to close resources")
				}
			}()

			return c.process(cmd, a.Processor, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the JSON response instead of a summary")
	return cmd
}
