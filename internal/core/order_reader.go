package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrderReader loads read-only order snapshots for matching.
type OrderReader interface {
	// GetOrder finds an order by number. The lookup compares canonical forms, so
	// "AZ003463-0001" finds an order stored as "AZ0034630001".
	GetOrder(ctx context.Context, companyCode, orderNumber string) (Order, error)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// resolveCompanyID maps a company code to its id.
func resolveCompanyID(ctx context.Context, q queryRower, companyCode string) (int, error) {
	var id int
	err := q.QueryRow(ctx, "SELECT id FROM companies WHERE company_code = $1", companyCode).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("company code %s not found", companyCode)
		}
		return 0, fmt.Errorf("fetch company id: %w", err)
	}
	return id, nil
}

type orderReader struct {
	pool *pgxpool.Pool
}

// NewOrderReader constructs an OrderReader over purchase_orders.
func NewOrderReader(pool *pgxpool.Pool) OrderReader {
	return &orderReader{pool: pool}
}

func (r *orderReader) GetOrder(ctx context.Context, companyCode, orderNumber string) (Order, error) {
	key := Normalize(orderNumber)
	if key.IsEmpty() {
		return Order{}, fmt.Errorf("order number %q: %w", orderNumber, ErrOrderNotFound)
	}

	companyID, err := resolveCompanyID(ctx, r.pool, companyCode)
	if err != nil {
		return Order{}, err
	}

	var (
		orderID int
		order   Order
		total   *decimal.Decimal
	)
	// Exact match first so a literal hit wins over a canonical collision.
	err = r.pool.QueryRow(ctx, `
		SELECT po.id, po.po_number, po.po_date, v.name, po.total_transaction
		FROM purchase_orders po
		JOIN vendors v ON v.id = po.vendor_id
		WHERE po.company_id = $1
		  AND regexp_replace(upper(po.po_number), '[^A-Z0-9]', '', 'g') = $2
		ORDER BY (po.po_number = $3) DESC, po.id
		LIMIT 1`,
		companyID, key.Canonical, orderNumber,
	).Scan(&orderID, &order.OrderNumber, &order.OrderDate, &order.SupplierName, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("order %s in company %s: %w", orderNumber, companyCode, ErrOrderNotFound)
		}
		return Order{}, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	order.ExpectedTotal = total

	lines, err := r.fetchLines(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderReader) fetchLines(ctx context.Context, orderID int) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(p.code, ''), COALESCE(pol.description, p.name, ''), pol.quantity, pol.unit_cost
		FROM purchase_order_lines pol
		LEFT JOIN products p ON p.id = pol.product_id
		WHERE pol.order_id = $1
		ORDER BY pol.line_number`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch lines for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.SKU, &l.Description, &l.Quantity, &l.UnitCost); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// dateOrNil formats an optional date for a DATE column.
func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}
