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
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/model"
)

var postalCodePattern = regexp.MustCompile(`^\d{5}$`)

// billingStep is one single-field prompt of the billing data chain.
type billingStep struct {
	state   model.State
	next    model.State
	prompt  string
	invalid string
	rules   []validation.Rule
	apply   func(b *model.BillingData, value string)
}

var billingSteps = []billingStep{
	{
		state:  model.StateBillingAskRazon,
		next:   model.StateBillingAskCalle,
		prompt: "Escribe tu nombre o razón social tal como aparece en tu constancia fiscal.",
		apply:  func(b *model.BillingData, v string) { b.RazonSocial = strings.ToUpper(v) },
	},
	{
		state:  model.StateBillingAskCalle,
		next:   model.StateBillingAskNumero,
		prompt: "¿Cuál es la calle de tu domicilio fiscal?",
		apply:  func(b *model.BillingData, v string) { b.Calle = v },
	},
	{
		state:  model.StateBillingAskNumero,
		next:   model.StateBillingAskColonia,
		prompt: "¿Cuál es el número exterior (e interior, si aplica)?",
		apply:  func(b *model.BillingData, v string) { b.Numero = v },
	},
	{
		state:  model.StateBillingAskColonia,
		next:   model.StateBillingAskCP,
		prompt: "¿En qué colonia?",
		apply:  func(b *model.BillingData, v string) { b.Colonia = v },
	},
	{
		state:   model.StateBillingAskCP,
		next:    model.StateBillingAskCorreo,
		prompt:  "¿Cuál es tu código postal?",
		invalid: "El código postal debe tener 5 dígitos.",
		rules:   []validation.Rule{validation.Match(postalCodePattern)},
		apply:   func(b *model.BillingData, v string) { b.CodigoPostal = v },
	},
	{
		state:   model.StateBillingAskCorreo,
		next:    model.StateBillingAskRegimen,
		prompt:  "¿A qué correo enviamos tu factura?",
		invalid: "Ese correo no parece válido. Revísalo e intenta de nuevo.",
		rules:   []validation.Rule{is.EmailFormat},
		apply:   func(b *model.BillingData, v string) { b.Correo = strings.ToLower(v) },
	},
}

func (c *Comanda) billingFieldHandler(step billingStep) func(ctx context.Context, t *Turn) (model.State, error) {
	return func(ctx context.Context, t *Turn) (model.State, error) {
		value, ok := t.Text()
		if !ok {
			return c.reprompt(ctx, t)
		}
		if err := validation.Validate(value, step.rules...); err != nil {
			c.sendText(ctx, t, step.invalid)
			return c.reprompt(ctx, t)
		}

		if err := c.saveBilling(ctx, t, step.next, func(b *model.BillingData) { step.apply(b, value) }); err != nil {
			return t.Session.State, fmt.Errorf("save billing data: %w", err)
		}
		return c.enter(ctx, t, step.next)
	}
}

// saveBilling applies change to the customer's billing data and stores it
// together with the session moved to next.
func (c *Comanda) saveBilling(ctx context.Context, t *Turn, next model.State, change func(b *model.BillingData)) error {
	return c.commitWithSession(ctx, t, next, func(tx database.Tx) error {
		customer, err := loadCustomerForUpdate(ctx, tx, t.Phone)
		if err != nil {
			return err
		}
		change(customer.BillingData())
		if err := tx.UpsertCustomer(ctx, customer); err != nil {
			return err
		}
		t.Customer = customer
		return nil
	})
}

func (c *Comanda) handleBillingWarning(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnBillingContinue:
		if t.Customer != nil && t.Customer.Billing.IsComplete() {
			return c.enter(ctx, t, model.StateBillingConfirmData)
		}
		return c.enter(ctx, t, model.StateBillingAskRazon)
	case BtnBillingCancel:
		return c.enter(ctx, t, model.StateMenu)
	}
	return c.reprompt(ctx, t)
}

func (c *Comanda) handleBillingRegimen(ctx context.Context, t *Turn) (model.State, error) {
	code := strings.TrimPrefix(t.Choice(), regimenRowPrefix)
	regimen, ok := model.FindTaxRegime(code)
	if !ok {
		return c.reprompt(ctx, t)
	}

	if err := c.saveBilling(ctx, t, model.StateBillingConfirmData, func(b *model.BillingData) { b.Regimen = regimen.Code }); err != nil {
		return t.Session.State, fmt.Errorf("save billing data: %w", err)
	}
	return c.enter(ctx, t, model.StateBillingConfirmData)
}

func (c *Comanda) handleBillingConfirm(ctx context.Context, t *Turn) (model.State, error) {
	switch t.Choice() {
	case BtnBillingConfirm:
		return c.enter(ctx, t, model.StateBillingAskNoteFolio)
	case BtnBillingCorrect:
		return c.enter(ctx, t, model.StateBillingAskRazon)
	}
	return c.reprompt(ctx, t)
}

func (c *Comanda) handleNoteFolio(ctx context.Context, t *Turn) (model.State, error) {
	folio, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}
	t.Session.TempFields.InvoiceFolio = strings.ToUpper(folio)
	return c.enter(ctx, t, model.StateBillingAskNoteTotal)
}

func (c *Comanda) handleNoteTotal(ctx context.Context, t *Turn) (model.State, error) {
	text, ok := t.Text()
	if !ok {
		return c.reprompt(ctx, t)
	}
	total, err := parseAmount(text)
	if err != nil {
		c.sendText(ctx, t, msgInvalidTotal)
		return t.Session.State, nil
	}
	t.Session.TempFields.InvoiceTotal = total.StringFixed(2)
	return c.enter(ctx, t, model.StateBillingAskCfdi)
}

// parseAmount reads a positive money amount such as "1250.5" or "$1,250.50".
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "MXN", "", "mxn", "").Replace(s)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount.Round(2), nil
}

func (c *Comanda) handleCfdi(ctx context.Context, t *Turn) (model.State, error) {
	usage, ok := model.FindCfdiUsage(strings.TrimPrefix(t.Choice(), cfdiRowPrefix))
	if !ok {
		return c.reprompt(ctx, t)
	}
	t.Session.TempFields.CfdiUsage = usage.Code

	staff, err := c.datasource.FindStaffByRoles(ctx, []model.StaffRole{model.RoleAdmin, model.RoleSupervisor})
	if err != nil {
		logrus.WithFields(logrus.Fields{"customer_phone": t.Phone, "error": err}).Error("failed to find invoice recipients")
	}

	request := c.invoiceRequestSummary(t, usage)
	delivered := 0
	for _, member := range staff {
		if c.notifier.SendText(ctx, member.Phone, request) {
			delivered++
		}
	}
	logrus.WithFields(logrus.Fields{
		"customer_phone": t.Phone,
		"recipients":     len(staff),
		"delivered":      delivered,
	}).Info("invoice request sent to staff")

	c.sendText(ctx, t, msgInvoiceReceived)
	t.Session.ClearInvoiceFields()
	return c.enter(ctx, t, model.StateMenu)
}

func (c *Comanda) invoiceRequestSummary(t *Turn, usage model.CatalogEntry) string {
	name := ""
	var billing *model.BillingData
	if t.Customer != nil {
		name = t.Customer.Name
		billing = t.Customer.Billing
	}
	return fmt.Sprintf("🧾 Nueva solicitud de factura\nCliente: %s (%s)\nFolio del ticket: %s\nTotal: $%s\nUso de CFDI: %s - %s\n\n%s",
		name, t.Phone, t.Session.TempFields.InvoiceFolio, t.Session.TempFields.InvoiceTotal, usage.Code, usage.Description, billing.Summary())
}
