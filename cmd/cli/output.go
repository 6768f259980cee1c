package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func noColor() bool { return color.NoColor }

func header(w io.Writer, text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(w, "%s\n%s\n%s\n", line, text, line)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSummary renders a processed file for humans.
func printSummary(w io.Writer, res pipeline.Success) {
	d := res.Data
	header(w, d.File.Filename)

	fmt.Fprintf(w, "Rows:      %d total, ", d.Statistics.TotalRows)
	green.Fprintf(w, "%d valid", d.Statistics.ValidRows)
	fmt.Fprint(w, ", ")
	if d.Statistics.InvalidRows > 0 {
		red.Fprintf(w, "%d invalid", d.Statistics.InvalidRows)
	} else {
		fmt.Fprintf(w, "%d invalid", d.Statistics.InvalidRows)
	}
	fmt.Fprintf(w, " (%.1f%% success)\n", d.Validation.SuccessRate)

	fmt.Fprintf(w, "Columns:   %s\n", strings.Join(d.CSV.Columns, ", "))
	fmt.Fprintf(w, "Encoding:  %s, delimiter %q\n", d.File.Encoding, d.CSV.Delimiter)

	dr := d.Statistics.Details.DateRange
	if dr.Earliest != nil && dr.Latest != nil {
		fmt.Fprintf(w, "Dates:     %s to %s (%d days)\n", *dr.Earliest, *dr.Latest, dr.SpanDays)
	}
	am := d.Statistics.Details.Amounts
	fmt.Fprintf(w, "Amounts:   income %.2f, expenses %.2f, net %.2f\n", am.PositiveTotal, am.NegativeTotal, am.Total)

	if d.UploadID != "" {
		bold.Fprintf(w, "Upload:    %s\n", d.UploadID)
	}

	if len(d.Validation.Errors) > 0 {
		fmt.Fprintln(w)
		red.Fprintf(w, "Validation errors (%d):\n", len(d.Validation.Errors))
		for _, p := range d.Validation.Errors {
			printProblem(w, p)
		}
	}

	if len(d.Warnings) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintf(w, "Warnings (%d):\n", len(d.Warnings))
		for _, wn := range d.Warnings {
			fmt.Fprintf(w, "  row %d [%s] %s\n", wn.Row, wn.Code, wn.Message)
		}
	}
}

func printProblem(w io.Writer, p apperrors.Problem) {
	if p.Row > 0 {
		fmt.Fprintf(w, "  row %d %s: %s", p.Row, p.Field, p.Message)
	} else {
		fmt.Fprintf(w, "  %s", p.Message)
	}
	if p.Suggestion != "" {
		fmt.Fprintf(w, " (%s)", p.Suggestion)
	}
	fmt.Fprintln(w)
}

// printFailure renders a rejected file.
func printFailure(w io.Writer, f apperrors.Failure) {
	red.Fprintf(w, "%s: %s\n", f.Error.Code, f.Error.Message)
	for _, p := range f.ValidationErrors {
		printProblem(w, p)
	}
}

func printUploads(w io.Writer, uploads []*records.Upload) {
	if len(uploads) == 0 {
		fmt.Fprintln(w, "No uploads.")
		return
	}
	bold.Fprintf(w, "%-36s  %-10s  %6s  %6s  %s\n", "ID", "STATUS", "VALID", "TOTAL", "FILE")
	for _, u := range uploads {
		fmt.Fprintf(w, "%-36s  ", u.ID)
		statusColor(u.Status).Fprintf(w, "%-10s", u.Status)
		fmt.Fprintf(w, "  %6d  %6d  %s\n", u.ValidRows, u.TotalRows, u.OriginalFilename)
	}
}

func statusColor(s records.UploadStatus) *color.Color {
	switch s {
	case records.StatusCompleted:
		return green
	case records.StatusPartial:
		return yellow
	case records.StatusFailed:
		return red
	default:
		return color.New(color.Reset)
	}
}
