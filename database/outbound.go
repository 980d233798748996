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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blnkfinance/comanda/model"
)

func (d Datasource) CreateOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
		msg.UpdatedAt = msg.CreatedAt
	}
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO comanda.outbound_messages (message_id, recipient, payload_kind, rendered_body, delivery_status, attempts, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
	`, msg.MessageID, msg.Recipient, msg.PayloadKind, msg.RenderedBody, model.DeliveryPending, []byte(msg.RawPayload), msg.CreatedAt, msg.UpdatedAt)
	return err
}

// MarkOutboundSent and MarkOutboundFailed only move PENDING rows, so a
// message settles exactly once.
func (d Datasource) MarkOutboundSent(ctx context.Context, messageID, providerMessageID string, attempts int) error {
	return d.settleOutbound(ctx, `
		UPDATE comanda.outbound_messages
		SET delivery_status = $2, provider_message_id = $3, attempts = $4, updated_at = $5
		WHERE message_id = $1 AND delivery_status = 'PENDING'
	`, messageID, model.DeliverySent, providerMessageID, attempts, time.Now())
}

func (d Datasource) MarkOutboundFailed(ctx context.Context, messageID, reason string, attempts int) error {
	return d.settleOutbound(ctx, `
		UPDATE comanda.outbound_messages
		SET delivery_status = $2, failure_reason = $3, attempts = $4, updated_at = $5
		WHERE message_id = $1 AND delivery_status = 'PENDING'
	`, messageID, model.DeliveryFailed, reason, attempts, time.Now())
}

func (d Datasource) settleOutbound(ctx context.Context, query string, args ...interface{}) error {
	res, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// GetStuckOutboundMessages returns PENDING messages created before olderThan, oldest first.
func (d Datasource) GetStuckOutboundMessages(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboundMessage, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT message_id, recipient, payload_kind, attempts, created_at
		FROM comanda.outbound_messages
		WHERE delivery_status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutboundMessage
	for rows.Next() {
		m := &model.OutboundMessage{DeliveryStatus: model.DeliveryPending}
		if err := rows.Scan(&m.MessageID, &m.Recipient, &m.PayloadKind, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d Datasource) GetOutboundMessage(ctx context.Context, messageID string) (*model.OutboundMessage, error) {
	m := &model.OutboundMessage{}
	var providerID, reason sql.NullString
	var raw []byte
	err := d.Conn.QueryRowContext(ctx, `
		SELECT message_id, recipient, payload_kind, rendered_body, delivery_status, provider_message_id, failure_reason, attempts, raw_payload, created_at, updated_at
		FROM comanda.outbound_messages
		WHERE message_id = $1
	`, messageID).Scan(&m.MessageID, &m.Recipient, &m.PayloadKind, &m.RenderedBody, &m.DeliveryStatus, &providerID, &reason,
		&m.Attempts, &raw, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ProviderMessageID = providerID.String
	m.FailureReason = reason.String
	m.RawPayload = raw
	return m, nil
}
