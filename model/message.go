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
	"encoding/json"
	"time"
)

type PayloadKind string

const (
	PayloadText    PayloadKind = "text"
	PayloadButtons PayloadKind = "interactive_buttons"
	PayloadList    PayloadKind = "interactive_list"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// OutboundMessage is the append-only record of one attempted send.
// A PENDING row exists before the first network attempt and moves once to SENT or FAILED.
type OutboundMessage struct {
	MessageID         string          `json:"message_id"`
	Recipient         string          `json:"recipient"`
	PayloadKind       PayloadKind     `json:"payload_kind"`
	RenderedBody      string          `json:"rendered_body"`
	DeliveryStatus    DeliveryStatus  `json:"delivery_status"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	Attempts          int             `json:"attempts"`
	RawPayload        json.RawMessage `json:"raw_payload"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// InboundMessage is a provider event already decoded by the transport layer.
type InboundMessage struct {
	ProviderMessageID string      `json:"provider_message_id"`
	From              string      `json:"from"`
	ProfileName       string      `json:"profile_name,omitempty"`
	Type              MessageType `json:"type"`
	Content           string      `json:"content"`
	Timestamp         time.Time   `json:"timestamp"`
}
