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

import "time"

// State is a node in the conversation graph.
type State string

const (
	StateStart            State = "START"
	StateMenu             State = "MENU"
	StateAskName          State = "ASK_NAME"
	StateAskAddress       State = "ASK_ADDRESS"
	StateTakingOrder      State = "TAKING_ORDER"
	StateAwaitingConfirm  State = "AWAITING_CONFIRM"
	StateAddingMore       State = "ADDING_MORE"
	StateConfirmAddress   State = "CONFIRM_ADDRESS"
	StateSelectPayment    State = "SELECT_PAYMENT"
	StateConfirmLateOrder State = "CONFIRM_LATE_ORDER"

	StateBillingWarning       State = "BILLING_WARNING"
	StateBillingAskRazon      State = "BILLING_ASK_RAZON_SOCIAL"
	StateBillingAskCalle      State = "BILLING_ASK_CALLE"
	StateBillingAskNumero     State = "BILLING_ASK_NUMERO"
	StateBillingAskColonia    State = "BILLING_ASK_COLONIA"
	StateBillingAskCP         State = "BILLING_ASK_CP"
	StateBillingAskCorreo     State = "BILLING_ASK_CORREO"
	StateBillingAskRegimen    State = "BILLING_ASK_REGIMEN"
	StateBillingConfirmData   State = "BILLING_CONFIRM_DATA"
	StateBillingAskNoteFolio  State = "BILLING_ASK_NOTE_FOLIO"
	StateBillingAskNoteTotal  State = "BILLING_ASK_NOTE_TOTAL"
	StateBillingAskCfdi       State = "BILLING_ASK_CFDI"
)

// MessageType classifies the content of an inbound message.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageInteractive MessageType = "interactive"
	MessageOther       MessageType = "other"
)

// TempFields are small named slots carried between states.
type TempFields struct {
	Name         string `json:"name,omitempty"`
	InvoiceFolio string `json:"invoice_folio,omitempty"`
	InvoiceTotal string `json:"invoice_total,omitempty"`
	CfdiUsage    string `json:"cfdi_usage,omitempty"`
	LateOrder    bool   `json:"late_order,omitempty"`
}

// Session is the conversational context of one customer, keyed by phone number.
// Version is bumped by the datasource on every write.
type Session struct {
	CustomerPhone      string     `json:"customer_phone"`
	State              State      `json:"state"`
	ScratchBuffer      string     `json:"scratch_buffer"`
	TempFields         TempFields `json:"temp_fields"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	TimeoutMinutes     int        `json:"timeout_minutes"`
	WarningSent        bool       `json:"warning_sent"`
	ClosingWarningSent bool       `json:"closing_warning_sent"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NewSession returns a session in the START state whose activity clock starts at now.
func NewSession(phone string, timeoutMinutes int, now time.Time) *Session {
	return &Session{
		CustomerPhone:  phone,
		State:          StateStart,
		LastActivityAt: now,
		TimeoutMinutes: timeoutMinutes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ExpiresAt is LastActivityAt plus the session's inactivity budget.
func (s *Session) ExpiresAt() time.Time {
	return s.LastActivityAt.Add(time.Duration(s.TimeoutMinutes) * time.Minute)
}

// IsExpired reports whether now is past ExpiresAt.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt())
}

// Elapsed returns the inactivity time at now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// Touch records customer activity. Notification flags belong to one inactivity
// episode, so they are cleared together with the clock.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
	s.WarningSent = false
	s.ClosingWarningSent = false
}

// Reset returns the session to START without removing it.
func (s *Session) Reset() {
	s.State = StateStart
	s.ScratchBuffer = ""
	s.TempFields = TempFields{}
	s.WarningSent = false
	s.ClosingWarningSent = false
}

// AppendToBuffer adds text to the scratch buffer on a new line.
func (s *Session) AppendToBuffer(text string) {
	if s.ScratchBuffer == "" {
		s.ScratchBuffer = text
		return
	}
	s.ScratchBuffer = s.ScratchBuffer + "\n" + text
}

// ClearInvoiceFields drops the in-progress invoice request.
func (s *Session) ClearInvoiceFields() {
	s.TempFields.InvoiceFolio = ""
	s.TempFields.InvoiceTotal = ""
	s.TempFields.CfdiUsage = ""
}
