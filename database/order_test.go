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
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/comanda/internal/apierror"
	"github.com/blnkfinance/comanda/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{"order_id", "folio", "customer_id", "customer_phone", "customer_name", "items", "address",
	"payment_method", "status", "late_order", "created_at", "updated_at"}

func TestTx_CreateOrderAllocatesFolio(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	created := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	order := &model.Order{
		CustomerID:    "cus_1",
		CustomerPhone: "5215512345678",
		CustomerName:  "Ana",
		Items:         "2 kg carne molida",
		Address:       "Juárez 10",
		PaymentMethod: model.PaymentCash,
		CreatedAt:     created,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO comanda.order_folio_counters").WithArgs("2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(12))
	mock.ExpectExec("INSERT INTO comanda.orders").
		WithArgs(sqlmock.AnyArg(), "PED-240501-0012", "cus_1", "5215512345678", "Ana", "2 kg carne molida", "Juárez 10",
			model.PaymentCash, model.OrderPending, false, created, created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := ds.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.CreateOrder(context.Background(), order))
	require.NoError(t, tx.Commit())

	assert.Equal(t, "PED-240501-0012", order.Folio)
	assert.Contains(t, order.OrderID, "ord_")
	assert.Equal(t, model.OrderPending, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_CreateOrderCounterFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO comanda.order_folio_counters").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	tx, err := ds.BeginTx(context.Background())
	require.NoError(t, err)
	err = tx.CreateOrder(context.Background(), &model.Order{})
	assert.Error(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	now := time.Now()
	mock.ExpectQuery("SELECT order_id, folio .* FROM comanda.orders WHERE order_id = \\$1 OR folio = \\$1").
		WithArgs("PED-240501-0001").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow("ord_1", "PED-240501-0001", "cus_1", "1", "Ana", "1 kg bistec", "Juárez 10", "card", "PREPARING", true, now, now))

	o, err := ds.GetOrder(context.Background(), "PED-240501-0001")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", o.OrderID)
	assert.Equal(t, model.PaymentCard, o.PaymentMethod)
	assert.Equal(t, model.OrderPreparing, o.Status)
	assert.True(t, o.LateOrder)

	mock.ExpectQuery("SELECT order_id").WithArgs("nope").WillReturnRows(sqlmock.NewRows(orderCols))
	o, err = ds.GetOrder(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestUpdateOrderStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	at := time.Now()
	mock.ExpectExec("UPDATE comanda.orders SET status").WithArgs("ord_1", model.OrderOnTheWay, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ds.UpdateOrderStatus(context.Background(), "ord_1", model.OrderOnTheWay, at))

	mock.ExpectExec("UPDATE comanda.orders SET status").WithArgs("ord_2", model.OrderOnTheWay, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = ds.UpdateOrderStatus(context.Background(), "ord_2", model.OrderOnTheWay, at)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
