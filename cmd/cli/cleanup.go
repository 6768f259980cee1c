package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/spf13/cobra"
)

func (c *cli) cleanupCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove raw files older than the retention period",
		Long: `Cleanup removes files from the disk raw store whose modification time
is older than --older-than (default: the configured raw_retention).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.RawStore != "disk" {
				return fmt.Errorf("cleanup needs the disk raw store, configured %q", c.cfg.RawStore)
			}
			age := olderThan
			if age <= 0 {
				age = c.cfg.RawRetention
			}

			store, err := rawstore.NewDiskStore(c.cfg.RawDir)
			if err != nil {
				return err
			}
			removed, err := store.CleanupOlderThan(cmd.Context(), age)
			if err != nil {
				return err
			}

			c.log.Info().Int("removed", removed).Dur("older_than", age).Str("dir", store.Dir()).Msg("Raw files cleaned up")
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) older than %s\n", removed, age)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold, e.g. 720h")
	return cmd
}
