// Package stats aggregates validated transactions into upload statistics.
package stats

import (
	"sort"

	"github.com/dvloznov/csv-intake/internal/dates"
	"github.com/dvloznov/csv-intake/internal/domain"
	"github.com/shopspring/decimal"
)

type DateRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
	SpanDays int     `json:"spanDays"`
}

type Amounts struct {
	Total         float64 `json:"total"`
	Average       float64 `json:"average"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	PositiveCount int     `json:"positiveCount"`
	NegativeCount int     `json:"negativeCount"`
	PositiveTotal float64 `json:"positiveTotal"`
	NegativeTotal float64 `json:"negativeTotal"`
}

type CategoryShare struct {
	Category    string  `json:"category"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	TotalAmount float64 `json:"totalAmount"`
}

type Categories struct {
	Total        int             `json:"total"`
	Distribution []CategoryShare `json:"distribution"`
}

type Overview struct {
	TotalTransactions   int     `json:"totalTransactions"`
	ValidTransactions   int     `json:"validTransactions"`
	InvalidTransactions int     `json:"invalidTransactions"`
	ValidationRate      float64 `json:"validationRate"`
}

// Statistics describes the valid transactions of an upload. Overview counts
// every row.
type Statistics struct {
	DateRange  DateRange  `json:"dateRange"`
	Amounts    Amounts    `json:"amounts"`
	Categories Categories `json:"categories"`
	Overview   Overview   `json:"overview"`
}

// Calculate computes statistics over results. It never fails: with no valid
// rows every figure is zero and the date range is empty.
func Calculate(results []domain.RowResult) Statistics {
	txs := domain.ValidTransactions(results)
	return Statistics{
		DateRange:  dateRange(txs),
		Amounts:    amounts(txs),
		Categories: categories(txs),
		Overview:   overview(results),
	}
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func dateRange(txs []domain.Transaction) DateRange {
	if len(txs) == 0 {
		return DateRange{}
	}
	earliest, latest := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date < earliest {
			earliest = tx.Date
		}
		if tx.Date > latest {
			latest = tx.Date
		}
	}

	r := DateRange{Earliest: &earliest, Latest: &latest}
	from, err1 := dates.ParseISO(earliest)
	to, err2 := dates.ParseISO(latest)
	if err1 == nil && err2 == nil {
		r.SpanDays = dates.DaysBetween(from, to)
	}
	return r
}

func amounts(txs []domain.Transaction) Amounts {
	if len(txs) == 0 {
		return Amounts{}
	}

	var a Amounts
	total, posTotal, negTotal := decimal.Zero, decimal.Zero, decimal.Zero
	minAmt, maxAmt := txs[0].Amount, txs[0].Amount
	for _, tx := range txs {
		amt := tx.Amount
		total = total.Add(amt)
		if amt.LessThan(minAmt) {
			minAmt = amt
		}
		if amt.GreaterThan(maxAmt) {
			maxAmt = amt
		}
		switch amt.Sign() {
		case 1:
			a.PositiveCount++
			posTotal = posTotal.Add(amt)
		case -1:
			a.NegativeCount++
			negTotal = negTotal.Add(amt)
		}
	}

	a.Total = round2(total)
	a.Average = round2(total.DivRound(decimal.NewFromInt(int64(len(txs))), 8))
	a.Min = round2(minAmt)
	a.Max = round2(maxAmt)
	a.PositiveTotal = round2(posTotal)
	a.NegativeTotal = round2(negTotal)
	return a
}

func categories(txs []domain.Transaction) Categories {
	if len(txs) == 0 {
		return Categories{Distribution: []CategoryShare{}}
	}

	type bucket struct {
		count int
		total decimal.Decimal
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, tx := range txs {
		b, ok := buckets[tx.Category]
		if !ok {
			b = &bucket{total: decimal.Zero}
			buckets[tx.Category] = b
			order = append(order, tx.Category)
		}
		b.count++
		b.total = b.total.Add(tx.Amount)
	}

	n := decimal.NewFromInt(int64(len(txs)))
	dist := make([]CategoryShare, 0, len(order))
	for _, name := range order {
		b := buckets[name]
		dist = append(dist, CategoryShare{
			Category:    name,
			Count:       b.count,
			Percentage:  round2(decimal.NewFromInt(int64(b.count)).Mul(decimal.NewFromInt(100)).DivRound(n, 8)),
			TotalAmount: round2(b.total),
		})
	}
	sort.SliceStable(dist, func(i, j int) bool {
		return dist[i].Count > dist[j].Count
	})

	return Categories{Total: len(order), Distribution: dist}
}

func overview(results []domain.RowResult) Overview {
	o := Overview{TotalTransactions: len(results)}
	for _, r := range results {
		if r.Valid {
			o.ValidTransactions++
		}
	}
	o.InvalidTransactions = o.TotalTransactions - o.ValidTransactions
	if o.TotalTransactions > 0 {
		o.ValidationRate = round2(decimal.NewFromInt(int64(o.ValidTransactions)).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(int64(o.TotalTransactions)), 8))
	}
	return o
}

// TopCategories returns the first limit entries of the distribution. A
// non-positive limit means 10.
func TopCategories(s Statistics, limit int) []CategoryShare {
	if limit <= 0 {
		limit = 10
	}
	d := s.Categories.Distribution
	if len(d) > limit {
		d = d[:limit]
	}
	return d
}

type IncomeExpense struct {
	Income     float64 `json:"income"`
	Expenses   float64 `json:"expenses"`
	NetBalance float64 `json:"netBalance"`
}

// IncomeExpenseSummary splits the amounts into income and expenses.
// Expenses are reported as a positive figure.
func IncomeExpenseSummary(s Statistics) IncomeExpense {
	income := decimal.NewFromFloat(s.Amounts.PositiveTotal)
	expenses := decimal.NewFromFloat(s.Amounts.NegativeTotal).Abs()
	return IncomeExpense{
		Income:     round2(income),
		Expenses:   round2(expenses),
		NetBalance: round2(income.Sub(expenses)),
	}
}

// AverageDaily returns valid transactions per calendar day covered. A
// single-day upload returns the valid count.
func AverageDaily(s Statistics) float64 {
	valid := s.Overview.ValidTransactions
	if s.DateRange.SpanDays == 0 {
		return float64(valid)
	}
	return round2(decimal.NewFromInt(int64(valid)).DivRound(decimal.NewFromInt(int64(s.DateRange.SpanDays+1)), 8))
}
