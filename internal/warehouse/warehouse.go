// Package warehouse reads the sales mart: aggregate rollups for analysis,
// lookup tables for the UI, and the account records behind authentication.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store wraps the warehouse connection pool.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates a Store over an open pool.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Category is one row of the product category tree.
type Category struct {
	ID       int64  `json:"categoryId"`
	Name     string `json:"categoryName"`
	ParentID *int64 `json:"parentCategoryId"`
	Level    int    `json:"categoryLevel"`
}

// Campaign is one marketing campaign window.
type Campaign struct {
	ID        int64     `json:"campaignId"`
	Name      string    `json:"campaignName"`
	Type      string    `json:"campaignType"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// NamedSales is a sales total keyed by a dimension value.
type NamedSales struct {
	Name  string  `json:"name"`
	Sales float64 `json:"sales"`
}

// MonthlySales is a sales total for one calendar month.
type MonthlySales struct {
	Month string  `json:"month"`
	Sales float64 `json:"sales"`
}

// DashboardSummary holds the headline totals.
type DashboardSummary struct {
	TotalSales  float64 `json:"totalSales"`
	TotalOrders int64   `json:"totalOrders"`
	TotalUsers  int64   `json:"totalUsers"`
}

// Dashboard bundles the overview widgets served to the landing page.
type Dashboard struct {
	Summary       DashboardSummary `json:"summary"`
	MonthlySales  []MonthlySales   `json:"monthlySales"`
	CategorySales []NamedSales     `json:"categorySales"`
	ChannelSales  []NamedSales     `json:"channelSales"`
}

// Categories returns active product categories.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, category_name, parent_category_id, category_level FROM product_categories WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Level); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Channels returns the distinct order sources seen in the order history.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT order_source FROM orders`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Campaigns returns all marketing campaigns.
func (s *Store) Campaigns(ctx context.Context) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, campaign_name, campaign_type, start_date, end_date FROM marketing_campaigns`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()
	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Dashboard computes the overview totals, monthly trend, and category and
// channel distributions. Cancelled orders are excluded throughout.
func (s *Store) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	var totalSales sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT SUM(total_amount) FROM orders WHERE order_status != 'Cancelled'`).Scan(&totalSales); err != nil {
		return nil, fmt.Errorf("query total sales: %w", err)
	}
	d.Summary.TotalSales = totalSales.Float64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE order_status != 'Cancelled'`).Scan(&d.Summary.TotalOrders); err != nil {
		return nil, fmt.Errorf("query total orders: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users`).Scan(&d.Summary.TotalUsers); err != nil {
		return nil, fmt.Errorf("query total users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(order_date, 'YYYY-MM') AS month, SUM(total_amount) AS sales
		FROM orders
		WHERE order_status != 'Cancelled'
		GROUP BY to_char(order_date, 'YYYY-MM')
		ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("query monthly sales: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m MonthlySales
		if err := rows.Scan(&m.Month, &m.Sales); err != nil {
			return nil, fmt.Errorf("scan monthly sales: %w", err)
		}
		d.MonthlySales = append(d.MonthlySales, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.CategorySales, err = s.namedSales(ctx, `
		SELECT pc.category_name, SUM(o.total_amount) AS sales
		FROM orders o
		JOIN order_items oi ON o.order_id = oi.order_id
		JOIN products p ON oi.product_id = p.product_id
		JOIN product_categories pc ON p.category_id = pc.category_id
		WHERE o.order_status != 'Cancelled'
		GROUP BY pc.category_name
		ORDER BY sales DESC`)
	if err != nil {
		return nil, fmt.Errorf("query category sales: %w", err)
	}

	d.ChannelSales, err = s.namedSales(ctx, `
		SELECT order_source, SUM(total_amount) AS sales
		FROM orders
		WHERE order_status != 'Cancelled'
		GROUP BY order_source
		ORDER BY sales DESC`)
	if err != nil {
		return nil, fmt.Errorf("query channel sales: %w", err)
	}
	return &d, nil
}

func (s *Store) namedSales(ctx context.Context, query string) ([]NamedSales, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NamedSales
	for rows.Next() {
		var n NamedSales
		if err := rows.Scan(&n.Name, &n.Sales); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
