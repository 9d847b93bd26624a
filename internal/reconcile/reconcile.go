// Package reconcile cross-checks stored references and cash registers
// against the invariants the services maintain, for offline auditing.
package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	cash "backoffice/internal/cash/domain"
	references "backoffice/internal/references/domain"
)

// Sequence statuses.
const (
	StatusOK            = "ok"
	StatusGaps          = "gaps"
	StatusCounterBehind = "counter_behind"
	StatusCounterAhead  = "counter_ahead"
	StatusMalformed     = "malformed"
	StatusDrift         = "drift"
	StatusOpen          = "open"
)

// SequenceInput is what is stored for one (kind, year) sequence.
type SequenceInput struct {
	Kind       references.Kind
	Year       int
	Counter    int
	References []string
}

// SequenceReport describes one (kind, year) sequence.
type SequenceReport struct {
	Kind      references.Kind
	Year      int
	Counter   int
	Issued    int
	MaxSeq    int
	Missing   []int
	Malformed []string
	Status    string
}

// CheckSequence reports missing numbers between 1 and the highest issued
// sequence, references that do not parse for this kind and year, and
// disagreement between the counter and the stored documents.
//
// A counter ahead of the documents is expected when references were issued
// without a document; it is reported but is not a gap.
func CheckSequence(in SequenceInput) SequenceReport {
	report := SequenceReport{Kind: in.Kind, Year: in.Year, Counter: in.Counter}
	seen := make(map[int]struct{}, len(in.References))
	for _, value := range in.References {
		ref, err := references.Parse(value)
		if err != nil || ref.Kind != in.Kind || ref.Year != in.Year {
			report.Malformed = append(report.Malformed, value)
			continue
		}
		seen[ref.Seq] = struct{}{}
		if ref.Seq > report.MaxSeq {
			report.MaxSeq = ref.Seq
		}
	}
	report.Issued = len(seen)
	for seq := 1; seq < report.MaxSeq; seq++ {
		if _, ok := seen[seq]; !ok {
			report.Missing = append(report.Missing, seq)
		}
	}
	sort.Strings(report.Malformed)

	switch {
	case len(report.Missing) > 0:
		report.Status = StatusGaps
	case in.Counter < report.MaxSeq:
		report.Status = StatusCounterBehind
	case len(report.Malformed) > 0:
		report.Status = StatusMalformed
	case in.Counter > report.MaxSeq:
		report.Status = StatusCounterAhead
	default:
		report.Status = StatusOK
	}
	return report
}

// RegisterInput is a stored register with the ledger rows that belong to it.
type RegisterInput struct {
	Register     cash.Register
	Transactions []cash.Transaction
}

// RegisterReport compares the stored closing balance with the ledger.
type RegisterReport struct {
	RegisterID    int64
	BusinessDate  time.Time
	Status        string
	Opening       decimal.Decimal
	Totals        cash.Totals
	Recomputed    decimal.Decimal
	StoredClosing decimal.NullDecimal
	Difference    decimal.Decimal
	LateCount     int
	LateNet       decimal.Decimal
}

// CheckRegister recomputes the balance from the ledger. Movements created
// after the register was closed explain a difference; anything left over is
// drift.
func CheckRegister(in RegisterInput) RegisterReport {
	reg := in.Register
	totals := cash.SumTransactions(in.Transactions)
	report := RegisterReport{
		RegisterID:    reg.ID,
		BusinessDate:  reg.BusinessDate,
		Opening:       reg.OpeningBalance,
		Totals:        totals,
		Recomputed:    cash.Balance(reg.OpeningBalance, totals),
		StoredClosing: reg.ClosingBalance,
		Difference:    decimal.Zero,
		LateNet:       decimal.Zero,
	}
	if reg.IsOpen() || !reg.ClosingBalance.Valid {
		report.Status = StatusOpen
		return report
	}

	if reg.ClosedAt != nil {
		for _, tx := range in.Transactions {
			if !tx.CreatedAt.After(*reg.ClosedAt) {
				continue
			}
			report.LateCount++
			if tx.Direction == cash.DirectionOut {
				report.LateNet = report.LateNet.Sub(tx.Amount)
			} else {
				report.LateNet = report.LateNet.Add(tx.Amount)
			}
		}
	}
	report.Difference = report.Recomputed.Sub(reg.ClosingBalance.Decimal)
	if report.Difference.Equal(report.LateNet) {
		report.Status = StatusOK
	} else {
		report.Status = StatusDrift
	}
	return report
}
