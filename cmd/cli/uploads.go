package main

import (
	"errors"
	"fmt"

	"github.com/dvloznov/csv-intake/internal/app"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/spf13/cobra"
)

func (c *cli) uploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect and manage stored uploads",
	}
	cmd.AddCommand(c.uploadsListCmd())
	cmd.AddCommand(c.uploadsShowCmd())
	cmd.AddCommand(c.uploadsDeleteCmd())
	return cmd
}

func (c *cli) withRepo(cmd *cobra.Command, fn func(repo records.Repository) error) error {
	repo, err := app.NewRepository(cmd.Context(), c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			c.log.Error().Err(err).Msg("Failed to close repository")
		}
	}()
	return fn(repo)
}

func (c *cli) uploadsListCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepo(cmd, func(repo records.Repository) error {
				uploads, err := repo.ListUploads(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("failed to list uploads: %w", err)
				}
				if asJSON {
					if uploads == nil {
						uploads = []*records.Upload{}
					}
					return writeJSON(cmd.OutOrStdout(), uploads)
				}
				printUploads(cmd.OutOrStdout(), uploads)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of uploads")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) uploadsShowCmd() *cobra.Command {
	var withTransactions bool

	cmd := &cobra.Command{
		Use:   "show <upload-id>",
		Short: "Show an upload, optionally with its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd, func(repo records.Repository) error {
				ctx := cmd.Context()
				u, err := repo.GetUpload(ctx, args[0])
				if err != nil {
					return notFound(err, args[0])
				}
				if !withTransactions {
					return writeJSON(cmd.OutOrStdout(), u)
				}

				txs, err := repo.ListTransactions(ctx, u.ID)
				if err != nil {
					return fmt.Errorf("failed to list transactions: %w", err)
				}
				if txs == nil {
					txs = []*records.Transaction{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"upload":       u,
					"transactions": txs,
				})
			})
		},
	}

	cmd.Flags().BoolVar(&withTransactions, "transactions", false, "include the stored rows")
	return cmd
}

func (c *cli) uploadsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <upload-id>",
		Short: "Delete an upload, its transactions and its raw file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			u, err := a.Repo.GetUpload(ctx, args[0])
			if err != nil {
				return notFound(err, args[0])
			}
			if err := a.Repo.DeleteUpload(ctx, u.ID); err != nil {
				return fmt.Errorf("failed to delete upload: %w", err)
			}
			if a.Store != nil && u.StorageURI != "" {
				if err := a.Store.Delete(ctx, u.StorageURI); err != nil {
					c.log.Warn().Err(err).Str("upload_id", u.ID).Msg("Failed to delete raw file")
				}
			}

			green.Fprintf(cmd.OutOrStdout(), "Deleted upload %s\n", u.ID)
			return nil
		},
	}
}

func notFound(err error, id string) error {
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("upload %s not found", id)
	}
	return fmt.Errorf("failed to get upload: %w", err)
}
