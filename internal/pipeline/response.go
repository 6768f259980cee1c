package pipeline

import (
	"time"

	"github.com/dvloznov/csv-intake/internal/apperrors"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/stats"
	"github.com/dvloznov/csv-intake/internal/suggest"
	"github.com/dvloznov/csv-intake/internal/validation"
)

const previewRows = 5

type FileMeta struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimetype"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
}

type CSVMeta struct {
	TotalRows    int      `json:"totalRows"`
	TotalColumns int      `json:"totalColumns"`
	Columns      []string `json:"columns"`
	Delimiter    string   `json:"delimiter"`
	Linebreak    string   `json:"linebreak"`
	HasErrors    bool     `json:"hasErrors"`
	ErrorCount   int      `json:"errorCount"`
}

type StatisticsSummary struct {
	TotalRows   int              `json:"totalRows"`
	ValidRows   int              `json:"validRows"`
	InvalidRows int              `json:"invalidRows"`
	Warnings    int              `json:"warnings"`
	Details     stats.Statistics `json:"details"`
}

// ValidationSummary is the validation stats plus one problem per field error.
type ValidationSummary struct {
	validation.Stats
	Errors []apperrors.Problem `json:"errors"`
}

type SuccessData struct {
	UploadID       string            `json:"uploadId,omitempty"`
	File           FileMeta          `json:"file"`
	CSV            CSVMeta           `json:"csv"`
	Preview        []domain.RawRow   `json:"preview"`
	Statistics     StatisticsSummary `json:"statistics"`
	Validation     ValidationSummary `json:"validation"`
	Warnings       []rules.Warning   `json:"warnings"`
	ReceivedAt     string            `json:"receivedAt"`
	ProcessingTime int64             `json:"processingTime"`
}

// Success is the response body of a processed upload.
type Success struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    SuccessData `json:"data"`
}

// BuildSuccess assembles the response for a completed run.
func BuildSuccess(out *Outcome) Success {
	st := out.State
	data := SuccessData{
		File: FileMeta{
			Filename: st.Filename,
			MimeType: st.MimeType,
			Encoding: out.Encoding,
			Size:     int64(len(st.Content)),
		},
		Preview: []domain.RawRow{},
		Statistics: StatisticsSummary{
			TotalRows:   st.Validation.Total,
			ValidRows:   st.Validation.Valid,
			InvalidRows: st.Validation.Invalid,
			Warnings:    st.Rules.Stats.TotalWarnings,
			Details:     st.Statistics,
		},
		Validation: ValidationSummary{
			Stats:  st.Validation,
			Errors: RowProblems(st.Results),
		},
		Warnings:       st.Rules.Warnings,
		ReceivedAt:     st.ReceivedAt.Format(time.RFC3339),
		ProcessingTime: out.ProcessingTime.Milliseconds(),
	}
	if data.Warnings == nil {
		data.Warnings = []rules.Warning{}
	}
	if out.Persisted {
		data.UploadID = st.UploadID
	}
	if t := st.Table; t != nil {
		data.CSV = CSVMeta{
			TotalRows:    t.TotalRows(),
			TotalColumns: len(t.Columns),
			Columns:      t.Columns,
			Delimiter:    t.Meta.Delimiter,
			Linebreak:    t.Meta.Linebreak,
			HasErrors:    len(t.ParseErrors) > 0,
			ErrorCount:   len(t.ParseErrors),
		}
		n := min(previewRows, len(t.Rows))
		data.Preview = t.Rows[:n]
	}

	return Success{
		Success: true,
		Message: "File processed successfully",
		Data:    data,
	}
}

// BuildFailure assembles the response for a rejected upload. Detail of
// non-operational errors is withheld.
func BuildFailure(err error) apperrors.Failure {
	return apperrors.Public(err)
}

// RowProblems lists every field error of the invalid rows with a hint based
// on the offending value.
func RowProblems(results []domain.RowResult) []apperrors.Problem {
	problems := []apperrors.Problem{}
	for _, r := range results {
		if r.Valid {
			continue
		}
		for _, fe := range r.Errors {
			value, _ := r.RawData.Lookup(fe.Field)
			problems = append(problems, apperrors.Problem{
				Row:        r.Row,
				Field:      fe.Field,
				Code:       fe.Code,
				Message:    fe.Message,
				Value:      value,
				Suggestion: suggest.ForFieldError(fe, value),
			})
		}
	}
	return problems
}

// FieldErrors returns a FIELD_VALIDATION_ERROR listing the row problems of
// out, or nil when every row is valid.
func FieldErrors(out *Outcome) error {
	problems := RowProblems(out.State.Results)
	if len(problems) == 0 {
		return nil
	}
	return apperrors.FieldValidation(problems)
}
