/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blnkfinance/comanda/internal/apierror"
	"github.com/blnkfinance/comanda/model"
)

// CreateOrder assigns the order id and the day's next folio, then inserts it.
// The folio counter row is locked by the surrounding transaction.
func (t *pgTx) CreateOrder(ctx context.Context, order *model.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt
	order.OrderID = model.GenerateUUIDWithSuffix("ord")
	if order.Status == "" {
		order.Status = model.OrderPending
	}

	day := order.CreatedAt.Format("2006-01-02")
	var seq int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO comanda.order_folio_counters (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = comanda.order_folio_counters.last_value + 1
		RETURNING last_value
	`, day).Scan(&seq)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to allocate folio", err)
	}
	order.Folio = model.FormatFolio(order.CreatedAt, seq)

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO comanda.orders (order_id, folio, customer_id, customer_phone, customer_name, items, address, payment_method, status, late_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.OrderID, order.Folio, order.CustomerID, order.CustomerPhone, order.CustomerName, order.Items, order.Address,
		order.PaymentMethod, order.Status, order.LateOrder, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create order", err)
	}
	return nil
}

// GetOrder looks an order up by id or folio. It returns nil when nothing matches.
func (d Datasource) GetOrder(ctx context.Context, idOrFolio string) (*model.Order, error) {
	o := &model.Order{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT order_id, folio, customer_id, customer_phone, customer_name, items, address, payment_method, status, late_order, created_at, updated_at
		FROM comanda.orders
		WHERE order_id = $1 OR folio = $1
	`, idOrFolio).Scan(&o.OrderID, &o.Folio, &o.CustomerID, &o.CustomerPhone, &o.CustomerName, &o.Items, &o.Address,
		&o.PaymentMethod, &o.Status, &o.LateOrder, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}
	return o, nil
}

func (d Datasource) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE comanda.orders SET status = $2, updated_at = $3
		WHERE order_id = $1
	`, orderID, status, at)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Order not found", nil)
	}
	return nil
}
