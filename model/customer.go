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
	"fmt"
	"strings"
	"time"
)

// BillingData is the fiscal information needed to issue an invoice (CFDI).
type BillingData struct {
	RazonSocial  string `json:"razon_social"`
	Calle        string `json:"calle"`
	Numero       string `json:"numero"`
	Colonia      string `json:"colonia"`
	CodigoPostal string `json:"codigo_postal"`
	Correo       string `json:"correo"`
	Regimen      string `json:"regimen"`
}

// IsComplete reports whether every billing field has been captured.
func (b *BillingData) IsComplete() bool {
	if b == nil {
		return false
	}
	for _, v := range []string{b.RazonSocial, b.Calle, b.Numero, b.Colonia, b.CodigoPostal, b.Correo, b.Regimen} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Summary renders the billing data for confirmation and staff notifications.
func (b *BillingData) Summary() string {
	if b == nil {
		return ""
	}
	regimen := b.Regimen
	if r, ok := FindTaxRegime(b.Regimen); ok {
		regimen = fmt.Sprintf("%s - %s", r.Code, r.Description)
	}
	return fmt.Sprintf("Razón social: %s\nDirección: %s %s, Col. %s, C.P. %s\nCorreo: %s\nRégimen: %s",
		b.RazonSocial, b.Calle, b.Numero, b.Colonia, b.CodigoPostal, b.Correo, regimen)
}

// Customer is the profile of a person ordering through the chat channel.
type Customer struct {
	CustomerID string       `json:"customer_id"`
	Phone      string       `json:"phone"`
	Name       string       `json:"name"`
	Address    string       `json:"address"`
	Billing    *BillingData `json:"billing,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (c *Customer) HasName() bool {
	return c != nil && strings.TrimSpace(c.Name) != ""
}

func (c *Customer) HasAddress() bool {
	return c != nil && strings.TrimSpace(c.Address) != ""
}

// BillingData returns the customer's billing aggregate, creating it on first use.
func (c *Customer) BillingData() *BillingData {
	if c.Billing == nil {
		c.Billing = &BillingData{}
	}
	return c.Billing
}

// StaffRole is the role of an employee in the staff directory.
type StaffRole string

const (
	RoleAdmin      StaffRole = "ADMIN"
	RoleSupervisor StaffRole = "SUPERVISOR"
	RoleCashier    StaffRole = "CASHIER"
)

// Staff is an employee who may receive operational notifications.
type Staff struct {
	StaffID string    `json:"staff_id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	Role    StaffRole `json:"role"`
}
