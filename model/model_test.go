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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("ord")
	assert.True(t, strings.HasPrefix(id, "ord_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("ord"))
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("5215512345678", 30, now)

	assert.Equal(t, StateStart, s.State)
	assert.Equal(t, now.Add(30*time.Minute), s.ExpiresAt())
	assert.False(t, s.IsExpired(now.Add(30*time.Minute)))
	assert.True(t, s.IsExpired(now.Add(30*time.Minute+time.Second)))
	assert.Equal(t, 10*time.Minute, s.Elapsed(now.Add(10*time.Minute)))
}

func TestSession_TouchClearsFlags(t *testing.T) {
	now := time.Now()
	s := NewSession("5215512345678", 30, now.Add(-time.Hour))
	s.WarningSent = true
	s.ClosingWarningSent = true

	s.Touch(now)

	assert.Equal(t, now, s.LastActivityAt)
	assert.False(t, s.WarningSent)
	assert.False(t, s.ClosingWarningSent)
}

func TestSession_Reset(t *testing.T) {
	s := NewSession("5215512345678", 30, time.Now())
	s.State = StateAwaitingConfirm
	s.ScratchBuffer = "1 kg bistec"
	s.TempFields = TempFields{Name: "Ana", InvoiceFolio: "A-1"}
	s.WarningSent = true

	s.Reset()

	assert.Equal(t, StateStart, s.State)
	assert.Empty(t, s.ScratchBuffer)
	assert.Equal(t, TempFields{}, s.TempFields)
	assert.False(t, s.WarningSent)
}

func TestSession_AppendToBuffer(t *testing.T) {
	s := &Session{}
	s.AppendToBuffer("2 kg carne molida")
	assert.Equal(t, "2 kg carne molida", s.ScratchBuffer)

	s.AppendToBuffer("1 kg chorizo")
	s.AppendToBuffer("medio kg arrachera")
	assert.Equal(t, "2 kg carne molida\n1 kg chorizo\nmedio kg arrachera", s.ScratchBuffer)
}

func TestBillingData_IsComplete(t *testing.T) {
	var nilData *BillingData
	assert.False(t, nilData.IsComplete())

	b := &BillingData{RazonSocial: "Carnes SA", Calle: "Juárez", Numero: "10", Colonia: "Centro", CodigoPostal: "64000", Correo: "a@b.mx"}
	assert.False(t, b.IsComplete())

	b.Regimen = "601"
	assert.True(t, b.IsComplete())
	assert.Contains(t, b.Summary(), "601 - General de Ley Personas Morales")
}

func TestCustomer_ProfileChecks(t *testing.T) {
	var c *Customer
	assert.False(t, c.HasName())
	assert.False(t, c.HasAddress())

	c = &Customer{Name: " ", Address: "Calle 1"}
	assert.False(t, c.HasName())
	assert.True(t, c.HasAddress())

	c.BillingData().RazonSocial = "X"
	assert.Equal(t, "X", c.Billing.RazonSocial)
}

func TestOrder_TransitionTo(t *testing.T) {
	o := &Order{Folio: "PED-240501-0001", Status: OrderPending}

	assert.NoError(t, o.TransitionTo(OrderOnTheWay))
	assert.NoError(t, o.TransitionTo(OrderDelivered))

	err := o.TransitionTo(OrderCancelled)
	assert.True(t, errors.Is(err, ErrOrderAlreadyDelivered))
	assert.Equal(t, OrderDelivered, o.Status)

	cancelled := &Order{Status: OrderCancelled}
	assert.True(t, errors.Is(cancelled.TransitionTo(OrderPending), ErrOrderCancelled))
}

func TestParseOrderStatus(t *testing.T) {
	s, ok := ParseOrderStatus(" on_the_way ")
	assert.True(t, ok)
	assert.Equal(t, OrderOnTheWay, s)

	_, ok = ParseOrderStatus("lost")
	assert.False(t, ok)
}

func TestFormatFolio(t *testing.T) {
	day := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "PED-240501-0007", FormatFolio(day, 7))
}

func TestCatalogsFitOneList(t *testing.T) {
	assert.LessOrEqual(t, len(TaxRegimes), 10)
	assert.LessOrEqual(t, len(CfdiUsages), 10)

	_, ok := FindCfdiUsage("G03")
	assert.True(t, ok)
	_, ok = FindTaxRegime("999")
	assert.False(t, ok)
}
