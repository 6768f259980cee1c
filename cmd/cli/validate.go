package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/dvloznov/csv-intake/internal/app"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/spf13/cobra"
)

func (c *cli) validateCmd() *cobra.Command {
	var asJSON bool
	var encoding string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a CSV file without storing it",
		Long: `Validate runs the full check on a local file: file gate, parsing,
required columns, field validation and business rules. Nothing is stored.
The exit status is 1 when the file is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.ProcessorOptions(c.cfg)
			if err != nil {
				return err
			}
			if encoding != "" {
				opts.CSV.Encoding = encoding
			}
			return c.process(cmd, pipeline.NewProcessor(opts), args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the JSON response instead of a summary")
	cmd.Flags().StringVar(&encoding, "encoding", "", "source encoding (overrides config)")
	return cmd
}

// process runs path through p and prints the result.
func (c *cli) process(cmd *cobra.Command, p *pipeline.Processor, path string, asJSON bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	out, err := p.Process(cmd.Context(), pipeline.Input{
		Filename: filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Content:  content,
	})
	w := cmd.OutOrStdout()
	if err != nil {
		failure := pipeline.BuildFailure(err)
		if asJSON {
			if werr := writeJSON(w, failure); werr != nil {
				return werr
			}
		} else {
			printFailure(w, failure)
		}
		return errRejected
	}

	res := pipeline.BuildSuccess(out)
	if asJSON {
		return writeJSON(w, res)
	}
	printSummary(w, res)
	return nil
}
