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
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/internal/notification"
	"github.com/blnkfinance/comanda/model"
)

var errCustomerMissing = errors.New("customer not found")

func (c *Comanda) handleStart(ctx context.Context, t *Turn) (model.State, error) {
	c.sendGreeting(ctx, t)
	return c.enter(ctx, t, model.StateMenu)
}

func (c *Comanda) handleMenu(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnMakeOrder:
		if c.isLateOrder(ctx, t) {
			return c.enter(ctx, t, model.StateConfirmLateOrder)
		}
		return c.startOrder(ctx, t)
	case BtnInvoice:
		return c.enter(ctx, t, model.StateBillingWarning)
	case BtnBusinessHours:
		c.sendText(ctx, t, "🕗 Nuestro horario: "+c.conf.Ordering.BusinessHours)
		return c.enter(ctx, t, model.StateMenu)
	}
	return c.reprompt(ctx, t)
}

// isLateOrder reports whether the local business hour has reached the late-order threshold.
func (c *Comanda) isLateOrder(ctx context.Context, t *Turn) bool {
	return t.Now.In(c.conf.Location()).Hour() >= c.settings.LateOrderHour(ctx)
}

// startOrder routes to the first piece of profile data still missing.
func (c *Comanda) startOrder(ctx context.Context, t *Turn) (model.State, error) {
	switch {
	case !t.Customer.HasName():
		return c.enter(ctx, t, model.StateAskName)
	case !t.Customer.HasAddress():
		return c.enter(ctx, t, model.StateAskAddress)
	}
	return c.enter(ctx, t, model.StateTakingOrder)
}

func (c *Comanda) handleConfirmLateOrder(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnLateContinue:
		t.Session.TempFields.LateOrder = true
		return c.startOrder(ctx, t)
	case BtnLateCancel:
		return c.enter(ctx, t, model.StateMenu)
	}
	return c.reprompt(ctx, t)
}

// afterAddress is where the flow continues once the delivery address is known.
// A customer who was correcting the address mid-order goes straight to payment.
func afterAddress(s *model.Session) model.State {
	if s.ScratchBuffer != "" {
		return model.StateSelectPayment
	}
	return model.StateTakingOrder
}

func (c *Comanda) handleAskName(ctx context.Context, t *Turn) (model.State, error) {
	name, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}
	t.Session.TempFields.Name = name

	if !t.Customer.HasAddress() {
		return c.enter(ctx, t, model.StateAskAddress)
	}

	next := afterAddress(t.Session)
	err := c.commitWithSession(ctx, t, next, func(tx database.Tx) error {
		customer, err := loadCustomerForUpdate(ctx, tx, t.Phone)
		if err != nil {
			return err
		}
		customer.Name = name
		if err := tx.UpsertCustomer(ctx, customer); err != nil {
			return err
		}
		t.Customer = customer
		t.Session.TempFields.Name = ""
		return nil
	})
	if err != nil {
		return t.Session.State, fmt.Errorf("save customer name: %w", err)
	}
	return c.enter(ctx, t, next)
}

func (c *Comanda) handleAskAddress(ctx context.Context, t *Turn) (model.State, error) {
	address, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}

	next := afterAddress(t.Session)
	err := c.commitWithSession(ctx, t, next, func(tx database.Tx) error {
		customer, err := loadCustomerForUpdate(ctx, tx, t.Phone)
		if err != nil {
			return err
		}
		if t.Session.TempFields.Name != "" {
			customer.Name = t.Session.TempFields.Name
		}
		customer.Address = address
		if err := tx.UpsertCustomer(ctx, customer); err != nil {
			return err
		}
		t.Customer = customer
		t.Session.TempFields.Name = ""
		return nil
	})
	if err != nil {
		return t.Session.State, fmt.Errorf("save customer address: %w", err)
	}
	return c.enter(ctx, t, next)
}

func (c *Comanda) handleTakingOrder(ctx context.Context, t *Turn) (model.State, error) {
	text, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}
	t.Session.ScratchBuffer = text
	return c.enter(ctx, t, model.StateAwaitingConfirm)
}

func (c *Comanda) handleAwaitingConfirm(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnOrderConfirm:
		if !t.Customer.HasAddress() {
			return c.enter(ctx, t, model.StateAskAddress)
		}
		return c.enter(ctx, t, model.StateConfirmAddress)
	case BtnOrderAddMore:
		return c.enter(ctx, t, model.StateAddingMore)
	case BtnOrderCancel:
		t.Session.ScratchBuffer = ""
		t.Session.TempFields.LateOrder = false
		c.sendText(ctx, t, msgOrderCancelled)
		return c.enter(ctx, t, model.StateMenu)
	}
	return c.reprompt(ctx, t)
}

func (c *Comanda) handleAddingMore(ctx context.Context, t *Turn) (model.State, error) {
	text, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}
	t.Session.AppendToBuffer(text)
	return c.enter(ctx, t, model.StateAwaitingConfirm)
}

func (c *Comanda) handleConfirmAddress(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnAddressCorrect:
		return c.enter(ctx, t, model.StateSelectPayment)
	case BtnAddressWrong:
		return c.enter(ctx, t, model.StateAskAddress)
	}
	return c.reprompt(ctx, t)
}

func (c *Comanda) handleSelectPayment(ctx context.Context, t *Turn) (model.State, error) {
	var method model.PaymentMethod
	switch t.Choice() {
	case BtnPaymentCash:
		method = model.PaymentCash
	case BtnPaymentCard:
		method = model.PaymentCard
	default:
		return c.reprompt(ctx, t)
	}

	order := &model.Order{
		CustomerPhone: t.Phone,
		Items:         t.Session.ScratchBuffer,
		PaymentMethod: method,
		LateOrder:     t.Session.TempFields.LateOrder,
		CreatedAt:     t.Now,
	}
	err := c.commitWithSession(ctx, t, model.StateStart, func(tx database.Tx) error {
		customer, err := tx.GetCustomerByPhone(ctx, t.Phone)
		if err != nil {
			return err
		}
		if customer == nil {
			return errCustomerMissing
		}
		order.CustomerID = customer.CustomerID
		order.CustomerName = customer.Name
		order.Address = customer.Address
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		t.Session.ScratchBuffer = ""
		t.Session.TempFields.LateOrder = false
		return nil
	})
	if errors.Is(err, errCustomerMissing) {
		logrus.WithField("customer_phone", t.Phone).Warn("payment selected without a customer profile, order not created")
		return t.Session.State, nil
	}
	if err != nil {
		return t.Session.State, fmt.Errorf("create order: %w", err)
	}

	logrus.WithFields(logrus.Fields{"order_id": order.OrderID, "folio": order.Folio, "customer_phone": t.Phone}).Info("order created")
	c.afterOrderCreated(ctx, t, order)
	return model.StateStart, nil
}

// afterOrderCreated runs the best-effort follow ups of a committed order.
func (c *Comanda) afterOrderCreated(ctx context.Context, t *Turn, order *model.Order) {
	job := model.PrintJob{OrderID: order.OrderID, PrinterName: c.settings.PrinterName(ctx)}
	if err := c.queue.EnqueuePrintJob(ctx, job); err != nil {
		notification.NotifyError(fmt.Errorf("enqueue print job for %s: %w", order.Folio, err))
	}
	if err := c.queue.EnqueueWebhook(ctx, NewWebhook{Event: EventOrderCreated, Payload: order}); err != nil {
		logrus.WithFields(logrus.Fields{"order_id": order.OrderID, "error": err}).Error("failed to enqueue order webhook")
	}
	c.sendOrderConfirmation(ctx, t, order)
}
