package reconcile

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

const dateLayout = "2006-01-02"

// WriteSequencesCSV writes one row per sequence report.
func WriteSequencesCSV(w io.Writer, rows []SequenceReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"kind",
		"year",
		"counter",
		"issued",
		"max_seq",
		"missing",
		"malformed",
		"status",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		missing := make([]string, 0, len(row.Missing))
		for _, seq := range row.Missing {
			missing = append(missing, strconv.Itoa(seq))
		}
		if err := writer.Write([]string{
			string(row.Kind),
			strconv.Itoa(row.Year),
			strconv.Itoa(row.Counter),
			strconv.Itoa(row.Issued),
			strconv.Itoa(row.MaxSeq),
			strings.Join(missing, " "),
			strings.Join(row.Malformed, " "),
			row.Status,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRegistersCSV writes one row per register report.
func WriteRegistersCSV(w io.Writer, rows []RegisterReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"register_id",
		"business_date",
		"opening_balance",
		"total_in",
		"total_out",
		"recomputed_balance",
		"stored_closing_balance",
		"difference",
		"late_count",
		"late_net",
		"status",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		stored := ""
		if row.StoredClosing.Valid {
			stored = row.StoredClosing.Decimal.StringFixed(2)
		}
		if err := writer.Write([]string{
			strconv.FormatInt(row.RegisterID, 10),
			row.BusinessDate.Format(dateLayout),
			row.Opening.StringFixed(2),
			row.Totals.In.StringFixed(2),
			row.Totals.Out.StringFixed(2),
			row.Recomputed.StringFixed(2),
			stored,
			row.Difference.StringFixed(2),
			strconv.Itoa(row.LateCount),
			row.LateNet.StringFixed(2),
			row.Status,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
