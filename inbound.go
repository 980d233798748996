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
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/comanda/database"
	redlock "github.com/blnkfinance/comanda/internal/lock"
	"github.com/blnkfinance/comanda/model"
)

// HandleInbound processes one message received from a customer. Redelivered
// messages are dropped. Messages from the same customer are handled one at a
// time; a handler error leaves the stored session untouched.
func (c *Comanda) HandleInbound(ctx context.Context, msg model.InboundMessage) error {
	ctx, span := tracer.Start(ctx, "HandleInbound")
	defer span.End()
	span.SetAttributes(attribute.String("customer.phone", msg.From), attribute.String("message.type", string(msg.Type)))

	process, err := c.gate.ShouldProcess(ctx, msg.ProviderMessageID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dedup check: %w", err)
	}
	if !process {
		return nil
	}

	c.notifier.MarkRead(ctx, msg.ProviderMessageID)

	locker := redlock.ForCustomer(c.redis, msg.From)
	if err := locker.WaitLock(ctx, c.lockTTL, customerLockWait); err != nil {
		span.RecordError(err)
		return fmt.Errorf("lock customer %s: %w", msg.From, err)
	}
	stopRenewal := locker.KeepAlive(ctx, c.lockTTL)
	defer func() {
		stopRenewal()
		if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "error": err}).Warn("failed to release customer lock")
		}
	}()

	now := c.now()
	session, err := c.datasource.GetSession(ctx, msg.From)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		session, err = c.datasource.CreateSession(ctx, msg.From, c.settings.SessionTimeoutMinutes(ctx))
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("create session: %w", err)
		}
	}
	if session.IsExpired(now) && session.State != model.StateStart {
		logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "state": session.State}).Info("session expired, restarting conversation")
		session.Reset()
	}

	customer, err := c.datasource.GetCustomerByPhone(ctx, msg.From)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load customer: %w", err)
	}

	turn := &Turn{
		Phone:    msg.From,
		Content:  msg.Content,
		Type:     msg.Type,
		Session:  session,
		Customer: customer,
		Now:      now,
	}
	from := session.State
	next, err := c.dispatch(ctx, turn)
	if errors.Is(err, database.ErrSessionChanged) {
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "state": from}).Warn("session changed while handling message, discarding transition")
		return err
	}
	if err != nil {
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "state": from, "error": err}).Error("failed to handle inbound message")
		return err
	}

	if !turn.persisted {
		session.State = next
		session.Touch(now)
		if err := c.datasource.UpsertSession(ctx, session); err != nil {
			span.RecordError(err)
			if errors.Is(err, database.ErrSessionChanged) {
				logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "from": from, "to": next}).Warn("session changed while handling message, discarding transition")
			}
			return fmt.Errorf("save session: %w", err)
		}
	}

	span.SetAttributes(attribute.String("state.from", string(from)), attribute.String("state.to", string(next)))
	logrus.WithFields(logrus.Fields{"customer_phone": msg.From, "from": from, "to": next}).Debug("conversation advanced")
	return nil
}
