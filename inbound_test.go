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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/model"
)

func TestHandleInbound_HappyPathOrder(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")

	h.text(t, "2 kg carne molida")
	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateAwaitingConfirm, s.State)
	assert.Equal(t, "2 kg carne molida", s.ScratchBuffer)
	assert.Equal(t, []string{BtnOrderConfirm, BtnOrderAddMore, BtnOrderCancel}, h.notifier.last().Buttons)

	h.tap(t, BtnOrderConfirm)
	assert.Equal(t, model.StateConfirmAddress, h.state())
	assert.Contains(t, h.notifier.last().Body, "Av. Juárez 10, Centro")

	h.tap(t, BtnAddressCorrect)
	assert.Equal(t, model.StateSelectPayment, h.state())

	h.tap(t, BtnPaymentCash)
	s = h.db.session(customerPhone)
	assert.Equal(t, model.StateStart, s.State)
	assert.Empty(t, s.ScratchBuffer)

	orders := h.db.orderList()
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, "PED-240501-0001", order.Folio)
	assert.Equal(t, "2 kg carne molida", order.Items)
	assert.Equal(t, model.PaymentCash, order.PaymentMethod)
	assert.Equal(t, "Ana López", order.CustomerName)
	assert.False(t, order.LateOrder)

	require.Len(t, h.queue.printJobs, 1)
	assert.Equal(t, model.PrintJob{OrderID: order.OrderID, PrinterName: "cocina"}, h.queue.printJobs[0])
	require.Len(t, h.queue.webhooks, 1)
	assert.Equal(t, EventOrderCreated, h.queue.webhooks[0].Event)
	assert.Contains(t, h.notifier.last().Body, order.Folio)
}

func TestHandleInbound_LateOrderNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.now = time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC)
	h.inState(model.StateMenu, "")

	h.tap(t, BtnMakeOrder)

	assert.Equal(t, model.StateConfirmLateOrder, h.state())
	last := h.notifier.last()
	assert.Equal(t, model.PayloadButtons, last.Kind)
	assert.Equal(t, []string{BtnLateContinue, BtnLateCancel}, last.Buttons)

	h.tap(t, BtnLateContinue)
	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateTakingOrder, s.State)
	assert.True(t, s.TempFields.LateOrder)

	h.text(t, "1 kg bistec")
	h.tap(t, BtnOrderConfirm)
	h.tap(t, BtnAddressCorrect)
	h.tap(t, BtnPaymentCard)

	orders := h.db.orderList()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].LateOrder)
	assert.Equal(t, model.PaymentCard, orders[0].PaymentMethod)
	assert.False(t, h.db.session(customerPhone).TempFields.LateOrder)
	assert.Contains(t, h.notifier.last().Body, "siguiente día hábil")
}

func TestHandleInbound_LateOrderCancel(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.now = time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)
	h.inState(model.StateMenu, "")

	h.tap(t, BtnMakeOrder)
	require.Equal(t, model.StateConfirmLateOrder, h.state())

	h.tap(t, BtnLateCancel)
	assert.Equal(t, model.StateMenu, h.state())
}

func TestHandleInbound_LateOrderHourFromSettings(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.db.settings[SettingLateOrderHour] = "18"
	h.now = time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC)
	h.inState(model.StateMenu, "")

	h.tap(t, BtnMakeOrder)

	assert.Equal(t, model.StateTakingOrder, h.state())
}

func TestHandleInbound_NewCustomerOnboarding(t *testing.T) {
	h := newHarness(t)

	h.text(t, "hola")
	assert.Equal(t, model.StateMenu, h.state())
	msgs := h.notifier.sentTo(customerPhone)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, "Carnicería La Res")
	assert.Equal(t, []string{BtnMakeOrder, BtnInvoice, BtnBusinessHours}, msgs[1].Buttons)

	h.tap(t, BtnMakeOrder)
	assert.Equal(t, model.StateAskName, h.state())

	h.text(t, "Ana López")
	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateAskAddress, s.State)
	assert.Equal(t, "Ana López", s.TempFields.Name)
	assert.Nil(t, h.db.customer(customerPhone))

	h.text(t, "Av. Juárez 10, Centro")
	s = h.db.session(customerPhone)
	assert.Equal(t, model.StateTakingOrder, s.State)
	assert.Empty(t, s.TempFields.Name)

	customer := h.db.customer(customerPhone)
	require.NotNil(t, customer)
	assert.Equal(t, "Ana López", customer.Name)
	assert.Equal(t, "Av. Juárez 10, Centro", customer.Address)
	assert.Equal(t, msgAskOrder, h.notifier.last().Body)
}

func TestHandleInbound_ReturningCustomerGreeting(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()

	h.text(t, "buenas")

	msgs := h.notifier.sentTo(customerPhone)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0].Body, "Ana López")
}

func TestHandleInbound_AskNamePersistsWhenAddressKnown(t *testing.T) {
	h := newHarness(t)
	h.db.putCustomer(&model.Customer{Phone: customerPhone, Address: "Calle 5 #12"})
	h.inState(model.StateAskName, "")

	h.text(t, "Beto")

	assert.Equal(t, model.StateTakingOrder, h.state())
	assert.Equal(t, "Beto", h.db.customer(customerPhone).Name)
}

func TestHandleInbound_AddressCorrectionMidOrderGoesToPayment(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateConfirmAddress, "2 kg carne molida")

	h.tap(t, BtnAddressWrong)
	assert.Equal(t, model.StateAskAddress, h.state())
	assert.Equal(t, "2 kg carne molida", h.db.session(customerPhone).ScratchBuffer)

	h.text(t, "Calle Roble 3, Del Valle")
	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateSelectPayment, s.State)
	assert.Equal(t, "2 kg carne molida", s.ScratchBuffer)
	assert.Equal(t, "Calle Roble 3, Del Valle", h.db.customer(customerPhone).Address)
	assert.Equal(t, []string{BtnPaymentCash, BtnPaymentCard}, h.notifier.last().Buttons)
}

func TestHandleInbound_AddressTransactionFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.inState(model.StateAskAddress, "")
	h.db.beginErr = errors.New("connection reset")

	err := h.c.HandleInbound(context.Background(), model.InboundMessage{
		ProviderMessageID: "wamid.fail", From: customerPhone, Type: model.MessageText, Content: "Calle 1",
	})

	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, model.StateAskAddress, h.state())
	assert.Nil(t, h.db.customer(customerPhone))
}

func TestHandleInbound_OrderCreationFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateSelectPayment, "1 kg chorizo")
	h.db.createOrderErr = errors.New("folio counter locked")

	err := h.c.HandleInbound(context.Background(), model.InboundMessage{
		ProviderMessageID: "wamid.pay", From: customerPhone, Type: model.MessageInteractive, Content: BtnPaymentCash,
	})

	assert.Error(t, err)
	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateSelectPayment, s.State)
	assert.Equal(t, "1 kg chorizo", s.ScratchBuffer)
	assert.Empty(t, h.db.orderList())
	assert.Equal(t, 1, h.db.rollbacks)
	assert.Empty(t, h.queue.printJobs)
}

func TestHandleInbound_PaymentWithoutCustomerAborts(t *testing.T) {
	h := newHarness(t)
	h.inState(model.StateSelectPayment, "1 kg chorizo")

	h.tap(t, BtnPaymentCard)

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateSelectPayment, s.State)
	assert.Equal(t, "1 kg chorizo", s.ScratchBuffer)
	assert.Empty(t, h.db.orderList())
	assert.Equal(t, 1, h.db.rollbacks)
}

func TestHandleInbound_PrintEnqueueFailureDoesNotFailOrder(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateSelectPayment, "1 kg chorizo")
	h.queue.printErr = errors.New("redis unavailable")
	h.queue.webhookErr = errors.New("redis unavailable")

	h.tap(t, BtnPaymentCash)

	assert.Equal(t, model.StateStart, h.state())
	require.Len(t, h.db.orderList(), 1)
	assert.Contains(t, h.notifier.last().Body, "Pedido confirmado")
}

func TestHandleInbound_DeliveryFailureDoesNotBlockProgress(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")
	h.notifier.fail = true

	h.text(t, "3 kg costilla")

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateAwaitingConfirm, s.State)
	assert.Equal(t, "3 kg costilla", s.ScratchBuffer)
}

func TestHandleInbound_BufferAppendLaw(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateAwaitingConfirm, "2 kg carne molida")

	h.tap(t, BtnOrderAddMore)
	assert.Equal(t, model.StateAddingMore, h.state())
	assert.Equal(t, "2 kg carne molida", h.db.session(customerPhone).ScratchBuffer)

	h.text(t, "1 kg chorizo")
	assert.Equal(t, model.StateAwaitingConfirm, h.state())
	assert.Equal(t, "2 kg carne molida\n1 kg chorizo", h.db.session(customerPhone).ScratchBuffer)

	h.tap(t, BtnOrderAddMore)
	h.text(t, "medio kg arrachera")
	assert.Equal(t, "2 kg carne molida\n1 kg chorizo\nmedio kg arrachera", h.db.session(customerPhone).ScratchBuffer)
}

func TestHandleInbound_AddingMoreRejectsNonText(t *testing.T) {
	h := newHarness(t)
	h.inState(model.StateAddingMore, "2 kg carne molida")

	h.send(t, model.MessageOther, "media_123")

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateAddingMore, s.State)
	assert.Equal(t, "2 kg carne molida", s.ScratchBuffer)
	assert.Equal(t, msgAskMore, h.notifier.last().Body)
}

func TestHandleInbound_OrderCancel(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateAwaitingConfirm, "2 kg carne molida")

	h.tap(t, BtnOrderCancel)

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateMenu, s.State)
	assert.Empty(t, s.ScratchBuffer)
}

func TestHandleInbound_UnknownInputRepromptsEveryState(t *testing.T) {
	states := []model.State{
		model.StateMenu, model.StateConfirmLateOrder, model.StateAwaitingConfirm, model.StateConfirmAddress,
		model.StateSelectPayment, model.StateBillingWarning, model.StateBillingAskRegimen,
		model.StateBillingConfirmData, model.StateBillingAskCfdi,
	}
	for _, state := range states {
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(t)
			h.completeCustomer()
			h.inState(state, "1 kg bistec")

			h.tap(t, "xyz")

			assert.Equal(t, state, h.state())
			assert.NotEmpty(t, h.notifier.messages())
		})
	}
}

func TestHandleInbound_DuplicateDeliveryIgnored(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")

	msg := model.InboundMessage{ProviderMessageID: "wamid.dup", From: customerPhone, Type: model.MessageText, Content: "1 kg bistec"}
	require.NoError(t, h.c.HandleInbound(context.Background(), msg))
	sent := len(h.notifier.messages())
	version := h.db.session(customerPhone).Version

	msg.Content = "otra cosa"
	require.NoError(t, h.c.HandleInbound(context.Background(), msg))

	assert.Len(t, h.notifier.messages(), sent)
	assert.Equal(t, version, h.db.session(customerPhone).Version)
	assert.Equal(t, "1 kg bistec", h.db.session(customerPhone).ScratchBuffer)
	assert.Equal(t, []string{"wamid.dup"}, h.notifier.read)
}

func TestHandleInbound_ExpiredSessionRestarts(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateAwaitingConfirm, "2 kg carne molida")
	h.now = h.now.Add(45 * time.Minute)

	h.tap(t, BtnOrderConfirm)

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateMenu, s.State)
	assert.Empty(t, s.ScratchBuffer)
	assert.Equal(t, h.now, s.LastActivityAt)
}

func TestHandleInbound_ActivityClearsWarningFlags(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")
	s := h.db.session(customerPhone)
	s.WarningSent = true
	h.db.putSession(s)
	h.now = h.now.Add(27 * time.Minute)

	h.text(t, "1 kg bistec")

	s = h.db.session(customerPhone)
	assert.False(t, s.WarningSent)
	assert.Equal(t, h.now, s.LastActivityAt)
}

func TestHandleInbound_LockHeldByAnotherWorker(t *testing.T) {
	h := newHarness(t)
	h.inState(model.StateMenu, "")
	require.NoError(t, h.mr.Set("lock:customer:"+customerPhone, "other-worker"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := h.c.HandleInbound(ctx, model.InboundMessage{ProviderMessageID: "wamid.lock", From: customerPhone, Type: model.MessageText, Content: "hola"})

	assert.Error(t, err)
	assert.Equal(t, model.StateMenu, h.state())
}

func TestHandleInbound_LapsedLockDoesNotOverwriteNewerTurn(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")

	var nestedErr error
	h.notifier.onSend = func() {
		h.mr.FastForward(customerLockTTL + time.Second)
		nestedErr = h.c.HandleInbound(context.Background(), model.InboundMessage{
			ProviderMessageID: "wamid.second",
			From:              customerPhone,
			Type:              model.MessageText,
			Content:           "1 kg bistec",
			Timestamp:         h.now,
		})
	}

	err := h.c.HandleInbound(context.Background(), model.InboundMessage{
		ProviderMessageID: "wamid.first",
		From:              customerPhone,
		Type:              model.MessageOther,
		Content:           "media_123",
		Timestamp:         h.now,
	})

	require.NoError(t, nestedErr)
	assert.True(t, errors.Is(err, database.ErrSessionChanged))

	s := h.db.session(customerPhone)
	assert.Equal(t, model.StateAwaitingConfirm, s.State)
	assert.Equal(t, "1 kg bistec", s.ScratchBuffer)
}

func TestHandleInbound_LockRenewedWhileHandling(t *testing.T) {
	h := newHarness(t)
	h.completeCustomer()
	h.inState(model.StateTakingOrder, "")

	h.c.lockTTL = 300 * time.Millisecond

	key := "lock:customer:" + customerPhone
	h.notifier.onSend = func() {
		require.True(t, h.mr.Exists(key))
		h.mr.SetTTL(key, time.Millisecond)
		assert.Eventually(t, func() bool {
			return h.mr.TTL(key) > 100*time.Millisecond
		}, 2*time.Second, 20*time.Millisecond)
	}

	h.text(t, "1 kg bistec")

	assert.Equal(t, model.StateAwaitingConfirm, h.state())
	assert.False(t, h.mr.Exists(key))
}

func TestTransitionDeterminism(t *testing.T) {
	cases := []struct {
		state model.State
		typ   model.MessageType
		input string
	}{
		{model.StateMenu, model.MessageInteractive, BtnMakeOrder},
		{model.StateTakingOrder, model.MessageText, "2 kg carne molida"},
		{model.StateAwaitingConfirm, model.MessageInteractive, BtnOrderConfirm},
		{model.StateConfirmAddress, model.MessageInteractive, "nada"},
		{model.StateBillingWarning, model.MessageInteractive, BtnBillingContinue},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			run := func() (model.State, []sentMessage) {
				h := newHarness(t)
				h.completeCustomer()
				h.inState(tc.state, "1 kg bistec")
				h.send(t, tc.typ, tc.input)
				return h.state(), h.notifier.messages()
			}
			state1, sent1 := run()
			state2, sent2 := run()
			assert.Equal(t, state1, state2)
			assert.Equal(t, sent1, sent2)
		})
	}
}

func TestHandleInbound_BusinessHours(t *testing.T) {
	h := newHarness(t)
	h.inState(model.StateMenu, "")

	h.tap(t, BtnBusinessHours)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.Contains(msgs[0].Body, "Lunes a sábado"))
	assert.Equal(t, model.StateMenu, h.state())
}
