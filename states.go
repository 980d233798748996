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
	"strings"
	"time"

	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/model"
)

// Turn is one inbound message being handled against the customer's session.
type Turn struct {
	Phone    string
	Content  string
	Type     model.MessageType
	Session  *model.Session
	Customer *model.Customer
	Now      time.Time

	// persisted is set when a handler already wrote the session inside its transaction.
	persisted bool
}

// Text returns the trimmed content of a text message.
func (t *Turn) Text() (string, bool) {
	if t.Type != model.MessageText {
		return "", false
	}
	text := strings.TrimSpace(t.Content)
	return text, text != ""
}

// Choice is the reply id of a button or list selection. Typed ids are accepted too.
func (t *Turn) Choice() string {
	return strings.TrimSpace(t.Content)
}

// stateHandler handles input received in one state and returns the next state.
// prompt sends what the customer sees on entering the state, and is re-sent on unknown input.
type stateHandler struct {
	handle func(ctx context.Context, t *Turn) (model.State, error)
	prompt func(ctx context.Context, t *Turn)
}

func (c *Comanda) registry() map[model.State]stateHandler {
	r := map[model.State]stateHandler{
		model.StateStart:            {c.handleStart, c.sendMainMenu},
		model.StateMenu:             {c.handleMenu, c.sendMainMenu},
		model.StateConfirmLateOrder: {c.handleConfirmLateOrder, c.sendLateOrderWarning},
		model.StateAskName:          {c.handleAskName, c.textPrompt(msgAskName)},
		model.StateAskAddress:       {c.handleAskAddress, c.textPrompt(msgAskAddress)},
		model.StateTakingOrder:      {c.handleTakingOrder, c.textPrompt(msgAskOrder)},
		model.StateAwaitingConfirm:  {c.handleAwaitingConfirm, c.sendOrderSummary},
		model.StateAddingMore:       {c.handleAddingMore, c.textPrompt(msgAskMore)},
		model.StateConfirmAddress:   {c.handleConfirmAddress, c.sendAddressConfirmation},
		model.StateSelectPayment:    {c.handleSelectPayment, c.sendPaymentOptions},

		model.StateBillingWarning:      {c.handleBillingWarning, c.sendBillingWarning},
		model.StateBillingAskRegimen:   {c.handleBillingRegimen, c.sendRegimenList},
		model.StateBillingConfirmData:  {c.handleBillingConfirm, c.sendBillingConfirmation},
		model.StateBillingAskNoteFolio: {c.handleNoteFolio, c.textPrompt(msgAskNoteFolio)},
		model.StateBillingAskNoteTotal: {c.handleNoteTotal, c.textPrompt(msgAskNoteTotal)},
		model.StateBillingAskCfdi:      {c.handleCfdi, c.sendCfdiList},
	}
	for _, step := range billingSteps {
		r[step.state] = stateHandler{c.billingFieldHandler(step), c.textPrompt(step.prompt)}
	}
	return r
}

func (c *Comanda) textPrompt(body string) func(ctx context.Context, t *Turn) {
	return func(ctx context.Context, t *Turn) {
		c.sendText(ctx, t, body)
	}
}

// dispatch runs the handler registered for the session state. A session in a
// state without a handler is restarted.
func (c *Comanda) dispatch(ctx context.Context, t *Turn) (model.State, error) {
	h, ok := c.handlers[t.Session.State]
	if !ok {
		t.Session.Reset()
		h = c.handlers[model.StateStart]
	}
	return h.handle(ctx, t)
}

// reprompt re-sends the prompt of the current state and keeps it.
func (c *Comanda) reprompt(ctx context.Context, t *Turn) (model.State, error) {
	c.handlers[t.Session.State].prompt(ctx, t)
	return t.Session.State, nil
}

// enter sends the prompt of next and returns it.
func (c *Comanda) enter(ctx context.Context, t *Turn, next model.State) (model.State, error) {
	c.handlers[next].prompt(ctx, t)
	return next, nil
}

// commitWithSession runs fn in a transaction and writes the session, moved to
// next, in the same transaction. On any error the transaction is rolled back
// and the stored session keeps its previous state.
func (c *Comanda) commitWithSession(ctx context.Context, t *Turn, next model.State, fn func(tx database.Tx) error) error {
	tx, err := c.datasource.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	previous := t.Session.State
	t.Session.State = next
	t.Session.Touch(t.Now)
	if err := tx.UpsertSession(ctx, t.Session); err != nil {
		t.Session.State = previous
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		t.Session.State = previous
		return err
	}
	t.persisted = true
	return nil
}

// loadCustomerForUpdate returns the stored customer or a new one for the turn's phone.
func loadCustomerForUpdate(ctx context.Context, tx database.Tx, phone string) (*model.Customer, error) {
	customer, err := tx.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		customer = &model.Customer{Phone: phone}
	}
	return customer, nil
}
