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
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/comanda/model"
)

// UpdateOrderStatus is the body of PATCH /orders/:id/status.
type UpdateOrderStatus struct {
	Status string `json:"status"`
}

func (u *UpdateOrderStatus) ValidateUpdateOrderStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.By(func(value interface{}) error {
			status, _ := value.(string)
			if _, ok := model.ParseOrderStatus(status); !ok {
				return validation.NewError("validation_invalid_status", "must be one of PENDING, PREPARING, ON_THE_WAY, DELIVERED, CANCELLED")
			}
			return nil
		})),
	)
}

// WebhookVerification carries the query parameters of the provider's subscription handshake.
type WebhookVerification struct {
	Mode      string `form:"hub.mode"`
	Token     string `form:"hub.verify_token"`
	Challenge string `form:"hub.challenge"`
}

func (w *WebhookVerification) ValidateWebhookVerification() error {
	w.Mode = strings.TrimSpace(w.Mode)
	return validation.ValidateStruct(w,
		validation.Field(&w.Mode, validation.Required),
		validation.Field(&w.Token, validation.Required),
		validation.Field(&w.Challenge, validation.Required),
	)
}
