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

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrOrderAlreadyDelivered is returned when the status of a delivered order is changed.
	ErrOrderAlreadyDelivered = errors.New("order already delivered")
	// ErrOrderCancelled is returned when the status of a cancelled order is changed.
	ErrOrderCancelled = errors.New("order is cancelled")
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Label is the Spanish name shown to customers and printed on tickets.
func (p PaymentMethod) Label() string {
	switch p {
	case PaymentCard:
		return "Tarjeta"
	default:
		return "Efectivo"
	}
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPreparing OrderStatus = "PREPARING"
	OrderOnTheWay  OrderStatus = "ON_THE_WAY"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus maps a case-insensitive status name to an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderPending:
		return OrderPending, true
	case OrderPreparing:
		return OrderPreparing, true
	case OrderOnTheWay:
		return OrderOnTheWay, true
	case OrderDelivered:
		return OrderDelivered, true
	case OrderCancelled:
		return OrderCancelled, true
	}
	return "", false
}

// Order is a confirmed purchase captured through the conversation.
type Order struct {
	OrderID       string        `json:"order_id"`
	Folio         string        `json:"folio"`
	CustomerID    string        `json:"customer_id"`
	CustomerPhone string        `json:"customer_phone"`
	CustomerName  string        `json:"customer_name"`
	Items         string        `json:"items"`
	Address       string        `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        OrderStatus   `json:"status"`
	LateOrder     bool          `json:"late_order"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TransitionTo moves the order to status. Delivered and cancelled orders are final.
func (o *Order) TransitionTo(status OrderStatus) error {
	switch o.Status {
	case OrderDelivered:
		return fmt.Errorf("order %s: %w", o.Folio, ErrOrderAlreadyDelivered)
	case OrderCancelled:
		return fmt.Errorf("order %s: %w", o.Folio, ErrOrderCancelled)
	}
	o.Status = status
	return nil
}

// FormatFolio builds the human readable folio for the n-th order of the day.
func FormatFolio(day time.Time, n int) string {
	return fmt.Sprintf("PED-%s-%04d", day.Format("060102"), n)
}

// PrintJob asks the kitchen printer to print an order ticket.
type PrintJob struct {
	OrderID     string `json:"order_id"`
	PrinterName string `json:"printer_name"`
	Duplicate   bool   `json:"duplicate"`
}
