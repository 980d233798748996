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

package comanda

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/model"
)

// StatusOutcome is the expected result of an order status change request.
type StatusOutcome string

const (
	StatusUpdated       StatusOutcome = "updated"
	StatusOrderNotFound StatusOutcome = "order_not_found"
	StatusInvalid       StatusOutcome = "invalid_status"
)

// OrderStatusUpdate reports what UpdateOrderStatus did.
type OrderStatusUpdate struct {
	Outcome          StatusOutcome `json:"outcome"`
	Order            *model.Order  `json:"order,omitempty"`
	CustomerNotified bool          `json:"customer_notified"`
}

var statusMessages = map[model.OrderStatus]string{
	model.OrderPreparing: "👨‍🍳 Estamos preparando tu pedido %s.",
	model.OrderOnTheWay:  "🚚 Tu pedido %s va en camino.",
	model.OrderDelivered: "✅ Tu pedido %s fue entregado. ¡Gracias por tu compra!",
	model.OrderCancelled: "Tu pedido %s fue cancelado. Si tienes dudas, escríbenos.",
}

// UpdateOrderStatus moves an order, found by id or folio, to status and tells
// the customer. Unknown orders and status names are reported in the result.
// Changing a delivered or cancelled order returns model.ErrOrderAlreadyDelivered
// or model.ErrOrderCancelled.
func (c *Comanda) UpdateOrderStatus(ctx context.Context, idOrFolio, status string) (OrderStatusUpdate, error) {
	newStatus, ok := model.ParseOrderStatus(status)
	if !ok {
		return OrderStatusUpdate{Outcome: StatusInvalid}, nil
	}

	order, err := c.datasource.GetOrder(ctx, idOrFolio)
	if err != nil {
		return OrderStatusUpdate{}, err
	}
	if order == nil {
		return OrderStatusUpdate{Outcome: StatusOrderNotFound}, nil
	}

	if err := order.TransitionTo(newStatus); err != nil {
		return OrderStatusUpdate{Order: order}, err
	}
	order.UpdatedAt = c.now()
	if err := c.datasource.UpdateOrderStatus(ctx, order.OrderID, order.Status, order.UpdatedAt); err != nil {
		return OrderStatusUpdate{}, err
	}

	result := OrderStatusUpdate{Outcome: StatusUpdated, Order: order}
	if tmpl, ok := statusMessages[order.Status]; ok {
		result.CustomerNotified = c.notifier.SendText(ctx, order.CustomerPhone, fmt.Sprintf(tmpl, order.Folio))
	}
	if err := c.queue.EnqueueWebhook(ctx, NewWebhook{Event: EventOrderStatusUpdated, Payload: order}); err != nil {
		logrus.WithFields(logrus.Fields{"order_id": order.OrderID, "error": err}).Error("failed to enqueue order webhook")
	}
	return result, nil
}
