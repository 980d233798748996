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
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apimodel "github.com/blnkfinance/comanda/api/model"
	"github.com/blnkfinance/comanda/internal/whatsapp"
)

// VerifyWebhook answers the provider's subscription handshake by echoing the challenge.
func (a Api) VerifyWebhook(c *gin.Context) {
	var query apimodel.WebhookVerification
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := query.ValidateWebhookVerification(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	challenge, err := whatsapp.VerifySubscription(query.Mode, query.Token, query.Challenge, a.conf.WhatsApp.VerifyToken)
	if errors.Is(err, whatsapp.ErrVerificationFailed) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook hands every message of a provider notification to the
// assistant. It answers 200 once the body is decoded; processing failures are
// logged because the provider's redelivery would be dropped as a duplicate.
func (a Api) ReceiveWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := whatsapp.DecodeWebhook(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	for _, msg := range messages {
		if err := a.assistant.HandleInbound(ctx, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"provider_message_id": msg.ProviderMessageID,
				"customer_phone":      msg.From,
				"error":               err,
			}).Error("failed to process inbound message")
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": len(messages)})
}
