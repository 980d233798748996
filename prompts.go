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

	"github.com/blnkfinance/comanda/internal/whatsapp"
	"github.com/blnkfinance/comanda/model"
)

// Reply ids of the interactive messages. Handlers match them exactly.
const (
	BtnMakeOrder       = "menu_hacer_pedido"
	BtnInvoice         = "menu_facturar"
	BtnBusinessHours   = "menu_horario"
	BtnLateContinue    = "late_continue"
	BtnLateCancel      = "late_cancel"
	BtnOrderConfirm    = "order_confirm"
	BtnOrderAddMore    = "order_add_more"
	BtnOrderCancel     = "order_cancel"
	BtnAddressCorrect  = "address_correct"
	BtnAddressWrong    = "address_wrong"
	BtnPaymentCash     = "payment_cash"
	BtnPaymentCard     = "payment_card"
	BtnBillingContinue = "billing_continue"
	BtnBillingCancel   = "billing_cancel"
	BtnBillingConfirm  = "billing_confirm"
	BtnBillingCorrect  = "billing_correct"

	regimenRowPrefix = "regimen_"
	cfdiRowPrefix    = "cfdi_"
)

const (
	msgAskName         = "Para tomar tu pedido, ¿a nombre de quién lo registramos?"
	msgAskAddress      = "¿Cuál es la dirección de entrega? Incluye calle, número, colonia y alguna referencia."
	msgAskOrder        = "¿Qué te gustaría pedir? Escribe tu pedido completo, por ejemplo: 2 kg de carne molida y 1 kg de bistec."
	msgAskMore         = "¿Qué más deseas agregar a tu pedido?"
	msgOrderCancelled  = "Tu pedido fue cancelado. Cuando quieras, puedes empezar uno nuevo."
	msgAskNoteFolio    = "Escribe el folio de tu ticket de compra."
	msgAskNoteTotal    = "Escribe el total de tu ticket, por ejemplo: 1250.50"
	msgInvalidTotal    = "No pudimos leer ese monto. Escribe solo el total, por ejemplo: 1250.50"
	msgInvoiceReceived = "¡Listo! Recibimos tu solicitud de factura. Te la enviaremos por correo en cuanto esté lista."
	msgSessionWarning  = "¿Sigues ahí? Tu conversación se cerrará en unos minutos por inactividad. Responde cualquier mensaje para continuar."
	msgSessionExpired  = "Tu conversación se cerró por inactividad. Escríbenos cuando quieras para empezar de nuevo."
	msgWindowClosing   = "Aviso: la ventana de 24 horas de WhatsApp para este número está por cerrarse. Envía cualquier mensaje para mantener activas las notificaciones."
)

func (c *Comanda) sendText(ctx context.Context, t *Turn, body string) {
	c.notifier.SendText(ctx, t.Phone, body)
}

func (c *Comanda) sendMainMenu(ctx context.Context, t *Turn) {
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Body: "¿En qué te podemos ayudar?",
		Buttons: []whatsapp.Button{
			{ID: BtnMakeOrder, Title: "Hacer pedido"},
			{ID: BtnInvoice, Title: "Facturar"},
			{ID: BtnBusinessHours, Title: "Horario"},
		},
	})
}

func (c *Comanda) sendGreeting(ctx context.Context, t *Turn) {
	if t.Customer.HasName() {
		c.sendText(ctx, t, fmt.Sprintf("¡Hola de nuevo, %s! 👋 Qué gusto saludarte.", t.Customer.Name))
		return
	}
	c.sendText(ctx, t, fmt.Sprintf("¡Hola! 👋 Bienvenido a %s.", c.conf.ProjectName))
}

func (c *Comanda) sendLateOrderWarning(ctx context.Context, t *Turn) {
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Header: "Pedido fuera de horario",
		Body:   "Los pedidos recibidos a esta hora se entregan el siguiente día hábil. ¿Deseas continuar?",
		Buttons: []whatsapp.Button{
			{ID: BtnLateContinue, Title: "Continuar"},
			{ID: BtnLateCancel, Title: "Cancelar"},
		},
	})
}

func (c *Comanda) sendOrderSummary(ctx context.Context, t *Turn) {
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Header: "Resumen de tu pedido",
		Body:   t.Session.ScratchBuffer + "\n\n¿Está correcto?",
		Buttons: []whatsapp.Button{
			{ID: BtnOrderConfirm, Title: "Confirmar"},
			{ID: BtnOrderAddMore, Title: "Agregar más"},
			{ID: BtnOrderCancel, Title: "Cancelar"},
		},
	})
}

func (c *Comanda) sendAddressConfirmation(ctx context.Context, t *Turn) {
	address := ""
	if t.Customer != nil {
		address = t.Customer.Address
	}
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Body: fmt.Sprintf("¿Entregamos en esta dirección?\n%s", address),
		Buttons: []whatsapp.Button{
			{ID: BtnAddressCorrect, Title: "Sí, es correcta"},
			{ID: BtnAddressWrong, Title: "Cambiar dirección"},
		},
	})
}

func (c *Comanda) sendPaymentOptions(ctx context.Context, t *Turn) {
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Body: "¿Cómo vas a pagar?",
		Buttons: []whatsapp.Button{
			{ID: BtnPaymentCash, Title: model.PaymentCash.Label()},
			{ID: BtnPaymentCard, Title: model.PaymentCard.Label()},
		},
	})
}

func (c *Comanda) sendOrderConfirmation(ctx context.Context, t *Turn, order *model.Order) {
	body := fmt.Sprintf("✅ ¡Pedido confirmado!\nFolio: %s\nPago: %s\n\n%s", order.Folio, order.PaymentMethod.Label(), order.Items)
	if order.LateOrder {
		body += "\n\nTu pedido se entregará el siguiente día hábil."
	}
	c.sendText(ctx, t, body)
}

func (c *Comanda) sendBillingWarning(ctx context.Context, t *Turn) {
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Header: "Facturación",
		Body:   "Para emitir tu factura necesitamos tus datos fiscales y los datos de tu ticket de compra (folio y total). ¿Deseas continuar?",
		Buttons: []whatsapp.Button{
			{ID: BtnBillingContinue, Title: "Continuar"},
			{ID: BtnBillingCancel, Title: "Cancelar"},
		},
	})
}

func (c *Comanda) sendBillingConfirmation(ctx context.Context, t *Turn) {
	var billing *model.BillingData
	if t.Customer != nil {
		billing = t.Customer.Billing
	}
	c.notifier.SendButtons(ctx, t.Phone, whatsapp.ButtonMessage{
		Header: "Confirma tus datos fiscales",
		Body:   billing.Summary(),
		Buttons: []whatsapp.Button{
			{ID: BtnBillingConfirm, Title: "Confirmar"},
			{ID: BtnBillingCorrect, Title: "Corregir"},
		},
	})
}

func (c *Comanda) sendRegimenList(ctx context.Context, t *Turn) {
	c.notifier.SendList(ctx, t.Phone, catalogList("Selecciona tu régimen fiscal.", "Ver regímenes", "Régimen fiscal", regimenRowPrefix, model.TaxRegimes))
}

func (c *Comanda) sendCfdiList(ctx context.Context, t *Turn) {
	c.notifier.SendList(ctx, t.Phone, catalogList("Selecciona el uso de CFDI de tu factura.", "Ver usos", "Uso de CFDI", cfdiRowPrefix, model.CfdiUsages))
}

func catalogList(body, button, section, prefix string, entries []model.CatalogEntry) whatsapp.ListMessage {
	rows := make([]whatsapp.ListRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, whatsapp.ListRow{ID: prefix + e.Code, Title: e.Code, Description: e.Description})
	}
	return whatsapp.ListMessage{
		Body:       body,
		ButtonText: button,
		Sections:   []whatsapp.ListSection{{Title: section, Rows: rows}},
	}
}
