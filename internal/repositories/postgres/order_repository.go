package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/pagination"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const orderColumns = `id, customer_id, line_items, shipping_address, payment_method, payment_status,
	payment_reference, is_paid, status, tracking_number, is_delivered, currency, items_total,
	shipping_fee, grand_total, cancel_reason, paid_at, delivered_at, cancelled_at, created_at,
	updated_at, version`

// OrderRepository stores orders in a single table; line items and the shipping
// address are JSONB snapshots.
type OrderRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(pool *pgxpool.Pool) (*OrderRepository, error) {
	if pool == nil {
		return nil, errors.New("order repository requires postgres pool")
	}
	return &OrderRepository{pool: pool}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`, row.args()...)
	return wrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	next := order.Clone()
	next.Version = expectedVersion + 1
	row, err := newOrderRow(next)
	if err != nil {
		return domain.Order{}, err
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE orders SET
	customer_id = $2, line_items = $3, shipping_address = $4, payment_method = $5,
	payment_status = $6, payment_reference = $7, is_paid = $8, status = $9,
	tracking_number = $10, is_delivered = $11, currency = $12, items_total = $13,
	shipping_fee = $14, grand_total = $15, cancel_reason = $16, paid_at = $17,
	delivered_at = $18, cancelled_at = $19, created_at = $20, updated_at = $21,
	version = $22
WHERE id = $1 AND version = $23`, append(row.args(), expectedVersion)...)
	if err != nil {
		return domain.Order{}, wrapError("orders.update", err)
	}
	if tag.RowsAffected() == 1 {
		return next, nil
	}

	var stored int64
	err = r.pool.QueryRow(ctx, `SELECT version FROM orders WHERE id = $1`, order.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, repositories.NewNotFoundError("orders.update", fmt.Errorf("order %s not found", order.ID))
	}
	if err != nil {
		return domain.Order{}, wrapError("orders.update", err)
	}
	return domain.Order{}, repositories.NewConflictError("orders.update",
		fmt.Errorf("%w: order %s at version %d, expected %d", repositories.ErrVersionMismatch, order.ID, stored, expectedVersion))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, strings.TrimSpace(orderID))
	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, wrapError("orders.find", err)
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			statuses = append(statuses, string(status))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if !cursor.IsZero() {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(cursor.CreatedAt), arg(cursor.ID)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(size+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	defer rows.Close()

	page := domain.CursorPage[domain.Order]{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
		}
		page.Items = append(page.Items, order)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}

	if len(page.Items) > size {
		page.Items = page.Items[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type lineItemJSON struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	ImageRef  string `json:"imageRef,omitempty"`
}

type addressJSON struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

type orderRow struct {
	order     domain.Order
	lineItems []byte
	address   []byte
}

func newOrderRow(order domain.Order) (orderRow, error) {
	lines := make([]lineItemJSON, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		lines = append(lines, lineItemJSON(item))
	}
	lineItems, err := json.Marshal(lines)
	if err != nil {
		return orderRow{}, fmt.Errorf("encode line items: %w", err)
	}
	address, err := json.Marshal(addressJSON(order.ShippingAddress))
	if err != nil {
		return orderRow{}, fmt.Errorf("encode shipping address: %w", err)
	}
	return orderRow{order: order, lineItems: lineItems, address: address}, nil
}

func (r orderRow) args() []any {
	o := r.order
	return []any{
		o.ID, o.CustomerID, r.lineItems, r.address, string(o.PaymentMethod), string(o.PaymentStatus),
		o.PaymentReference, o.IsPaid, string(o.Status), o.TrackingNumber, o.IsDelivered, o.Currency,
		o.ItemsTotal, o.ShippingFee, o.GrandTotal, o.CancelReason, o.PaidAt, o.DeliveredAt,
		o.CancelledAt, o.CreatedAt.UTC(), o.UpdatedAt.UTC(), o.Version,
	}
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                                    domain.Order
		lineItems, address                   []byte
		paymentMethod, paymentStatus, status string
		paidAt, deliveredAt, cancelledAt     *time.Time
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &lineItems, &address, &paymentMethod, &paymentStatus,
		&o.PaymentReference, &o.IsPaid, &status, &o.TrackingNumber, &o.IsDelivered, &o.Currency,
		&o.ItemsTotal, &o.ShippingFee, &o.GrandTotal, &o.CancelReason, &paidAt, &deliveredAt,
		&cancelledAt, &o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if err != nil {
		return domain.Order{}, err
	}

	var lines []lineItemJSON
	if err := json.Unmarshal(lineItems, &lines); err != nil {
		return domain.Order{}, fmt.Errorf("decode line items: %w", err)
	}
	o.LineItems = make([]domain.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		o.LineItems = append(o.LineItems, domain.OrderLineItem(line))
	}
	var addr addressJSON
	if err := json.Unmarshal(address, &addr); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	o.ShippingAddress = domain.ShippingAddress(addr)

	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Status = domain.OrderStatus(status)
	o.PaidAt = utc(paidAt)
	o.DeliveredAt = utc(deliveredAt)
	o.CancelledAt = utc(cancelledAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
