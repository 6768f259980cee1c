package records

import (
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/dvloznov/csv-intake/internal/stats"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildTransactions turns validation results into rows for uploadID,
// attaching the business-rule warnings of each row.
func BuildTransactions(uploadID string, results []domain.RowResult, warnings map[int][]rules.Warning) []*Transaction {
	out := make([]*Transaction, 0, len(results))
	for _, r := range results {
		tx := &Transaction{
			ID:        uuid.NewString(),
			UploadID:  uploadID,
			RowNumber: r.Row,
			IsValid:   r.Valid,
			RawData:   r.RawData,
		}
		if r.Valid && r.Data != nil {
			date := r.Data.Date
			tx.Date = &date
			tx.Amount = decimal.NewNullDecimal(r.Data.Amount)
			tx.Category = r.Data.Category
			tx.Description = r.Data.Description
		} else {
			tx.ValidationErrors = r.Errors
			if v, ok := r.RawData.Lookup("category"); ok {
				tx.Category = v
			}
			if v, ok := r.RawData.Lookup("description"); ok {
				tx.Description = v
			}
		}
		if ws := warnings[r.Row]; len(ws) > 0 {
			tx.HasWarnings = true
			tx.Warnings = ws
		}
		out = append(out, tx)
	}
	return out
}

// ApplyStatistics copies the aggregate figures of s onto u.
func ApplyStatistics(u *Upload, s stats.Statistics, totalWarnings int) {
	ie := stats.IncomeExpenseSummary(s)

	u.TotalRows = s.Overview.TotalTransactions
	u.ValidRows = s.Overview.ValidTransactions
	u.InvalidRows = s.Overview.InvalidTransactions
	u.ValidationRate = s.Overview.ValidationRate
	u.TotalWarnings = totalWarnings
	u.EarliestDate = s.DateRange.Earliest
	u.LatestDate = s.DateRange.Latest
	u.TotalAmount = s.Amounts.Total
	u.TotalIncome = ie.Income
	u.TotalExpenses = ie.Expenses
	u.NetBalance = s.Amounts.Total
}
