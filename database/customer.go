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
	"encoding/json"
	"errors"
	"time"

	"github.com/blnkfinance/comanda/internal/apierror"
	"github.com/blnkfinance/comanda/model"
)

func (d Datasource) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	return getCustomerByPhone(ctx, d.Conn, phone)
}

func (t *pgTx) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	return getCustomerByPhone(ctx, t.tx, phone)
}

func (d Datasource) UpsertCustomer(ctx context.Context, customer *model.Customer) error {
	return upsertCustomer(ctx, d.Conn, customer)
}

func (t *pgTx) UpsertCustomer(ctx context.Context, customer *model.Customer) error {
	return upsertCustomer(ctx, t.tx, customer)
}

// getCustomerByPhone returns nil when no customer is registered under phone.
func getCustomerByPhone(ctx context.Context, q querier, phone string) (*model.Customer, error) {
	c := &model.Customer{}
	var billing []byte
	err := q.QueryRowContext(ctx, `
		SELECT customer_id, phone, name, address, billing, created_at, updated_at
		FROM comanda.customers
		WHERE phone = $1
	`, phone).Scan(&c.CustomerID, &c.Phone, &c.Name, &c.Address, &billing, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve customer", err)
	}

	if len(billing) > 0 && string(billing) != "null" {
		c.Billing = &model.BillingData{}
		if err := json.Unmarshal(billing, c.Billing); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode billing data", err)
		}
	}
	return c, nil
}

func upsertCustomer(ctx context.Context, q querier, c *model.Customer) error {
	var billing []byte
	if c.Billing != nil {
		b, err := json.Marshal(c.Billing)
		if err != nil {
			return err
		}
		billing = b
	}

	if c.CustomerID == "" {
		c.CustomerID = model.GenerateUUIDWithSuffix("cus")
	}
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO comanda.customers (customer_id, phone, name, address, billing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			billing = EXCLUDED.billing,
			updated_at = EXCLUDED.updated_at
		RETURNING customer_id, created_at
	`, c.CustomerID, c.Phone, c.Name, c.Address, billing, c.CreatedAt, c.UpdatedAt).Scan(&c.CustomerID, &c.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save customer", err)
	}
	return nil
}
