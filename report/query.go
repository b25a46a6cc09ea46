package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Row is the total of one region's successful sales.
type Row struct {
	State         string `bun:"state" json:"state"`
	SalesCount    int64  `bun:"sales_count" json:"sales_count"`
	GrossCents    int64  `bun:"gross_cents" json:"gross_cents"`
	RefundedCents int64  `bun:"refunded_cents" json:"refunded_cents"`
}

// Aggregate returns successful purchases in the request's country and date
// range, grouped by state. Refunded purchases count towards gross and are
// also totalled separately.
func Aggregate(ctx context.Context, idb bun.IDB, req Request) ([]Row, error) {
	from, to, err := req.Window()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	rows := make([]Row, 0)
	err = idb.NewSelect().
		TableExpr("purchases AS p").
		ColumnExpr("COALESCE(p.state, '') AS state").
		ColumnExpr("COUNT(*) AS sales_count").
		ColumnExpr("SUM(p.price_cents) AS gross_cents").
		ColumnExpr("SUM(CASE WHEN p.stripe_refunded = TRUE THEN p.price_cents ELSE 0 END) AS refunded_cents").
		Where("p.purchase_state = ?", "successful").
		Where("p.country = ?", req.CountryCode).
		Where("p.created_at >= ?", from).
		Where("p.created_at < ?", to).
		GroupExpr("COALESCE(p.state, '')").
		OrderExpr("state ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("report: aggregate sales: %w", err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// Header is the first CSV record.
var Header = []string{"state", "sales_count", "gross", "refunded"}

// TotalLabel names the closing totals record.
const TotalLabel = "TOTAL"

// WriteCSV renders rows followed by a totals record. Amounts are written in
// major units with two decimals.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	var total Row
	for _, row := range rows {
		if err := cw.Write(record(row)); err != nil {
			return err
		}
		total.SalesCount += row.SalesCount
		total.GrossCents += row.GrossCents
		total.RefundedCents += row.RefundedCents
	}
	total.State = TotalLabel
	if err := cw.Write(record(total)); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func record(row Row) []string {
	return []string{
		row.State,
		strconv.FormatInt(row.SalesCount, 10),
		amount(row.GrossCents),
		amount(row.RefundedCents),
	}
}

func amount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
