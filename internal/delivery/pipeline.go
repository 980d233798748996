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

// Package delivery wraps the messaging transport with a per-attempt timeout,
// bounded retries and a circuit breaker, and keeps a record of every send.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/internal/whatsapp"
	"github.com/blnkfinance/comanda/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("comanda.delivery")

const (
	errKindTimeout     = "timeout"
	errKindCircuitOpen = "circuit_open"
	errKindRateLimited = "rate_limited"
	errKindServer      = "server_error"
	errKindClient      = "client_error"
	errKindNetwork     = "network"
	errKindCancelled   = "cancelled"
)

// OutboundStore persists the lifecycle of outbound messages.
type OutboundStore interface {
	CreateOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error
	MarkOutboundSent(ctx context.Context, messageID, providerMessageID string, attempts int) error
	MarkOutboundFailed(ctx context.Context, messageID, reason string, attempts int) error
	GetOutboundMessage(ctx context.Context, messageID string) (*model.OutboundMessage, error)
}

type Options struct {
	AttemptTimeout time.Duration
	// SendTimeout bounds a whole send including retries. Zero means no bound.
	SendTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Breaker        BreakerSettings
	Now            func() time.Time
}

func OptionsFromConfig(cfg config.DeliveryConfig) Options {
	retries := 0
	if cfg.MaxRetries != nil {
		retries = *cfg.MaxRetries
	}
	return Options{
		AttemptTimeout: time.Duration(cfg.AttemptTimeoutSeconds) * time.Second,
		SendTimeout:    time.Duration(cfg.SendTimeoutSeconds) * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Breaker: BreakerSettings{
			FailureRatio:      cfg.FailureRatio,
			MinimumThroughput: cfg.MinimumThroughput,
			SamplingDuration:  time.Duration(cfg.SamplingWindowSeconds) * time.Second,
			Capacity:          cfg.SamplingWindowCapacity,
			BreakDuration:     time.Duration(cfg.BreakDurationSeconds) * time.Second,
		},
	}
}

type Pipeline struct {
	transport whatsapp.Transport
	store     OutboundStore
	breaker   *CircuitBreaker
	metrics   *Metrics
	opts      Options
}

func NewPipeline(transport whatsapp.Transport, store OutboundStore, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	return &Pipeline{
		transport: transport,
		store:     store,
		breaker:   NewCircuitBreaker("whatsapp", opts.Breaker, opts.Now),
		metrics:   NewMetrics(opts.Now),
		opts:      opts,
	}
}

func (p *Pipeline) Breaker() *CircuitBreaker {
	return p.breaker
}

func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot(p.breaker.Stats())
}

// SendText delivers a plain text message. It returns false when the message
// could not be delivered; the failure is recorded, never returned.
func (p *Pipeline) SendText(ctx context.Context, to, body string) bool {
	raw, err := whatsapp.TextPayload(to, body)
	if err != nil {
		logrus.WithError(err).Error("failed to render text payload")
		return false
	}
	msg := newOutbound(to, model.PayloadText, body, raw)
	return p.deliver(ctx, msg, func(ctx context.Context) ([]byte, error) {
		return p.transport.SendText(ctx, to, body)
	})
}

func (p *Pipeline) SendButtons(ctx context.Context, to string, buttons whatsapp.ButtonMessage) bool {
	buttons = buttons.Normalize()
	raw, err := whatsapp.ButtonsPayload(to, buttons)
	if err != nil {
		logrus.WithError(err).Error("failed to render button payload")
		return false
	}
	msg := newOutbound(to, model.PayloadButtons, whatsapp.RenderButtons(buttons), raw)
	return p.deliver(ctx, msg, func(ctx context.Context) ([]byte, error) {
		return p.transport.SendButtons(ctx, to, buttons)
	})
}

func (p *Pipeline) SendList(ctx context.Context, to string, list whatsapp.ListMessage) bool {
	list = list.Normalize()
	raw, err := whatsapp.ListPayload(to, list)
	if err != nil {
		logrus.WithError(err).Error("failed to render list payload")
		return false
	}
	msg := newOutbound(to, model.PayloadList, whatsapp.RenderList(list), raw)
	return p.deliver(ctx, msg, func(ctx context.Context) ([]byte, error) {
		return p.transport.SendList(ctx, to, list)
	})
}

// Resend sends the stored payload of a previous message again, verbatim, as a new record.
func (p *Pipeline) Resend(ctx context.Context, outboundMessageID string) bool {
	original, err := p.store.GetOutboundMessage(ctx, outboundMessageID)
	if err != nil {
		logrus.WithError(err).WithField("message_id", outboundMessageID).Error("failed to load message for resend")
		return false
	}
	if original == nil || len(original.RawPayload) == 0 {
		logrus.WithField("message_id", outboundMessageID).Warn("nothing to resend")
		return false
	}

	msg := newOutbound(original.Recipient, original.PayloadKind, original.RenderedBody, original.RawPayload)
	return p.deliver(ctx, msg, func(ctx context.Context) ([]byte, error) {
		return p.transport.Resend(ctx, original.RawPayload)
	})
}

// MarkRead acknowledges an inbound message. It bypasses retries and the
// circuit breaker and only logs failures.
func (p *Pipeline) MarkRead(ctx context.Context, providerMessageID string) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	defer cancel()
	if err := p.transport.MarkRead(ctx, providerMessageID); err != nil {
		logrus.WithError(err).WithField("provider_message_id", providerMessageID).Warn("failed to mark message as read")
	}
}

func (p *Pipeline) DownloadMedia(ctx context.Context, mediaID string) (*whatsapp.Media, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	defer cancel()
	return p.transport.DownloadMedia(ctx, mediaID)
}

func newOutbound(to string, kind model.PayloadKind, rendered string, raw json.RawMessage) *model.OutboundMessage {
	return &model.OutboundMessage{
		MessageID:      model.GenerateUUIDWithSuffix("msg"),
		Recipient:      to,
		PayloadKind:    kind,
		RenderedBody:   rendered,
		DeliveryStatus: model.DeliveryPending,
		RawPayload:     raw,
	}
}

func (p *Pipeline) deliver(ctx context.Context, msg *model.OutboundMessage, call func(context.Context) ([]byte, error)) bool {
	ctx, span := tracer.Start(ctx, "Delivering outbound message")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", msg.MessageID),
		attribute.String("message.kind", string(msg.PayloadKind)),
	)

	logger := logrus.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"recipient":  msg.Recipient,
		"kind":       msg.PayloadKind,
	})

	now := p.opts.Now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	if err := p.store.CreateOutboundMessage(ctx, msg); err != nil {
		span.RecordError(err)
		logger.WithError(err).Error("failed to persist pending message, not sending")
		p.metrics.recordSend(false)
		return false
	}

	resp, attempts, err := p.execute(ctx, call)
	// the outcome must be persisted even if the caller gave up
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		span.RecordError(err)
		p.metrics.recordSend(false)
		logger.WithError(err).WithField("attempts", attempts).Warn("outbound message not delivered")
		if mErr := p.store.MarkOutboundFailed(persistCtx, msg.MessageID, err.Error(), attempts); mErr != nil {
			logger.WithError(mErr).Error("failed to mark message as failed")
		}
		return false
	}

	p.metrics.recordSend(true)
	providerID, perr := whatsapp.ParseMessageID(resp)
	if perr != nil {
		logger.WithError(perr).Warn("delivered but provider message id could not be parsed")
	}
	if mErr := p.store.MarkOutboundSent(persistCtx, msg.MessageID, providerID, attempts); mErr != nil {
		logger.WithError(mErr).Error("failed to mark message as sent")
	}
	return true
}

// execute runs call under the breaker with a per-attempt timeout, retrying
// transient failures with jittered exponential backoff until the send timeout.
func (p *Pipeline) execute(ctx context.Context, call func(context.Context) ([]byte, error)) ([]byte, int, error) {
	var (
		resp     []byte
		attempts int
		lastErr  error
	)

	sendCtx := ctx
	if p.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, p.opts.SendTimeout)
		defer cancel()
	}

	operation := func() error {
		permit, err := p.breaker.Allow()
		if err != nil {
			p.metrics.recordError(errKindCircuitOpen)
			return backoff.Permanent(err)
		}

		attempts++
		attemptCtx, cancel := context.WithTimeout(sendCtx, p.opts.AttemptTimeout)
		defer cancel()

		start := p.opts.Now()
		out, err := call(attemptCtx)
		p.metrics.recordLatency(p.opts.Now().Sub(start))

		if err == nil {
			p.breaker.Record(permit, true)
			resp = out
			return nil
		}

		kind, transient := classify(ctx, err)
		if kind == errKindCancelled {
			p.breaker.Release(permit)
		} else {
			p.breaker.Record(permit, false)
		}
		p.metrics.recordError(kind)
		if kind == errKindTimeout {
			err = fmt.Errorf("attempt timed out after %s: %w", p.opts.AttemptTimeout, err)
		}
		lastErr = err
		if !transient {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialBackoff
	b.MaxInterval = p.opts.MaxBackoff
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		p.metrics.recordRetry()
		logrus.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait.String(),
		}).Debug("retrying outbound message")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.opts.MaxRetries)), sendCtx)
	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil && ctx.Err() == nil && sendCtx.Err() != nil {
		if lastErr == nil {
			lastErr = sendCtx.Err()
		}
		err = fmt.Errorf("gave up after send timeout of %s: %w", p.opts.SendTimeout, lastErr)
	}
	return resp, attempts, err
}

// classify maps an attempt error to a metrics kind and whether it is worth retrying.
func classify(parent context.Context, err error) (string, bool) {
	if parent.Err() != nil {
		return errKindCancelled, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errKindTimeout, true
	}

	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return errKindRateLimited, true
		case apiErr.StatusCode >= 500:
			return errKindServer, true
		default:
			return errKindClient, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errKindTimeout, true
	}
	return errKindNetwork, true
}
