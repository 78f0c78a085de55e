package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/salescope/salescope/internal/model"
)

const dateLayout = "2006-01-02"

// buildAggregateQuery renders the rollup for one time window. Dimensions
// become select and group-by columns, metrics become aggregates, filters
// become IN clauses with positional placeholders.
func buildAggregateQuery(q model.AnalysisQuery, start, end string) (string, []any) {
	var selectCols, groupCols, whereCols []string
	args := []any{start, end}
	whereCols = append(whereCols, fmt.Sprintf("o.order_date BETWEEN $%d AND $%d", 1, 2))

	for _, d := range q.Dimensions {
		switch d {
		case model.DimensionCategory:
			selectCols = append(selectCols, "pc.category_name")
			groupCols = append(groupCols, "pc.category_name")
		case model.DimensionChannel:
			selectCols = append(selectCols, "o.order_source")
			groupCols = append(groupCols, "o.order_source")
		case model.DimensionDate:
			selectCols = append(selectCols, "o.order_date::date AS order_day")
			groupCols = append(groupCols, "order_day")
		}
	}

	for _, m := range q.Metrics {
		switch m {
		case model.MetricSales:
			selectCols = append(selectCols, "SUM(o.total_amount) AS total_sales")
		case model.MetricOrders:
			selectCols = append(selectCols, "COUNT(DISTINCT o.order_id) AS order_count")
		case model.MetricAOV:
			selectCols = append(selectCols, "SUM(o.total_amount) / COUNT(DISTINCT o.order_id) AS average_order_value")
		case model.MetricUnits:
			selectCols = append(selectCols, "SUM(oi.quantity) AS units_sold")
		case model.MetricDiscount:
			selectCols = append(selectCols, "SUM(oi.discount_amount) AS total_discount")
		}
	}

	if len(q.Filters.Categories) > 0 {
		whereCols = append(whereCols, inClause("pc.category_name", len(q.Filters.Categories), len(args)+1))
		for _, v := range q.Filters.Categories {
			args = append(args, v)
		}
	}
	if len(q.Filters.Channels) > 0 {
		whereCols = append(whereCols, inClause("o.order_source", len(q.Filters.Channels), len(args)+1))
		for _, v := range q.Filters.Channels {
			args = append(args, v)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectCols, ", "))
	sb.WriteString(" FROM orders o")
	sb.WriteString(" JOIN order_items oi ON o.order_id = oi.order_id")
	sb.WriteString(" JOIN products p ON oi.product_id = p.product_id")
	sb.WriteString(" JOIN product_categories pc ON p.category_id = pc.category_id")
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(whereCols, " AND "))
	if len(groupCols) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
	}
	return sb.String(), args
}

func inClause(column string, count, firstArg int) string {
	placeholders := make([]string, count)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", firstArg+i)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// comparisonRange shifts the query window for a comparison period. The
// previous period is the same number of days immediately before the window;
// the previous year is the same window one year earlier.
func comparisonRange(tr model.TimeRange, mode string) (string, string, bool) {
	start, err1 := time.Parse(dateLayout, tr.Start)
	end, err2 := time.Parse(dateLayout, tr.End)
	if err1 != nil || err2 != nil {
		return "", "", false
	}
	switch mode {
	case model.ComparePreviousPeriod:
		span := end.Sub(start) + 24*time.Hour
		return start.Add(-span).Format(dateLayout), end.Add(-span).Format(dateLayout), true
	case model.ComparePreviousYear:
		return start.AddDate(-1, 0, 0).Format(dateLayout), end.AddDate(-1, 0, 0).Format(dateLayout), true
	}
	return "", "", false
}

// AggregateSales runs the rollup described by q. With a comparison mode set,
// the shifted window is queried as well and every row carries a "period"
// column distinguishing the two windows.
func (s *Store) AggregateSales(ctx context.Context, q model.AnalysisQuery) ([]model.AggregateRow, error) {
	query, args := buildAggregateQuery(q, q.TimeRange.Start, q.TimeRange.End)
	rows, err := s.queryRows(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("aggregate query: %w", err)
	}
	if q.CompareWith == model.CompareNone || q.CompareWith == "" {
		return rows, nil
	}
	prevStart, prevEnd, ok := comparisonRange(q.TimeRange, q.CompareWith)
	if !ok {
		return rows, nil
	}
	for _, r := range rows {
		r["period"] = "current"
	}
	prevQuery, prevArgs := buildAggregateQuery(q, prevStart, prevEnd)
	prevRows, err := s.queryRows(ctx, prevQuery, prevArgs)
	if err != nil {
		return nil, fmt.Errorf("comparison query: %w", err)
	}
	for _, r := range prevRows {
		r["period"] = "comparison"
	}
	return append(rows, prevRows...), nil
}

// queryRows scans a result set into ordered generic rows keyed by column
// name. Byte slices are converted to strings so rows serialize cleanly.
func (s *Store) queryRows(ctx context.Context, query string, args []any) ([]model.AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []model.AggregateRow
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(model.AggregateRow, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
