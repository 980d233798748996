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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/comanda/model"
)

const sessionColumns = `customer_phone, state, scratch_buffer, temp_fields, last_activity_at, timeout_minutes, warning_sent, closing_warning_sent, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var tempFields []byte
	err := row.Scan(&s.CustomerPhone, &s.State, &s.ScratchBuffer, &tempFields, &s.LastActivityAt, &s.TimeoutMinutes,
		&s.WarningSent, &s.ClosingWarningSent, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(tempFields) > 0 {
		if err := json.Unmarshal(tempFields, &s.TempFields); err != nil {
			return nil, fmt.Errorf("decode temp fields: %w", err)
		}
	}
	return s, nil
}

func (d Datasource) GetSession(ctx context.Context, phone string) (*model.Session, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM comanda.sessions WHERE customer_phone = $1`, phone)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (d Datasource) CreateSession(ctx context.Context, phone string, timeoutMinutes int) (*model.Session, error) {
	s := model.NewSession(phone, timeoutMinutes, time.Now())
	tempFields, err := json.Marshal(s.TempFields)
	if err != nil {
		return nil, err
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO comanda.sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		ON CONFLICT (customer_phone) DO NOTHING
		RETURNING version
	`, s.CustomerPhone, s.State, s.ScratchBuffer, tempFields, s.LastActivityAt, s.TimeoutMinutes,
		s.WarningSent, s.ClosingWarningSent, s.CreatedAt, s.UpdatedAt).Scan(&s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		// created concurrently by another worker
		return d.GetSession(ctx, phone)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d Datasource) UpsertSession(ctx context.Context, s *model.Session) error {
	return upsertSession(ctx, d.Conn, s)
}

func (t *pgTx) UpsertSession(ctx context.Context, s *model.Session) error {
	return upsertSession(ctx, t.tx, s)
}

func upsertSession(ctx context.Context, q querier, s *model.Session) error {
	tempFields, err := json.Marshal(s.TempFields)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}

	var version int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO comanda.sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		ON CONFLICT (customer_phone) DO UPDATE SET
			state = EXCLUDED.state,
			scratch_buffer = EXCLUDED.scratch_buffer,
			temp_fields = EXCLUDED.temp_fields,
			last_activity_at = EXCLUDED.last_activity_at,
			timeout_minutes = EXCLUDED.timeout_minutes,
			warning_sent = EXCLUDED.warning_sent,
			closing_warning_sent = EXCLUDED.closing_warning_sent,
			version = comanda.sessions.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE comanda.sessions.version = $11
		RETURNING version
	`, s.CustomerPhone, s.State, s.ScratchBuffer, tempFields, s.LastActivityAt, s.TimeoutMinutes,
		s.WarningSent, s.ClosingWarningSent, s.CreatedAt, s.UpdatedAt, s.Version).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s at version %d", ErrSessionChanged, s.CustomerPhone, s.Version)
	}
	if err != nil {
		return err
	}
	s.Version = version
	return nil
}

func (d Datasource) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := d.Conn.QueryContext(ctx, `SELECT `+sessionColumns+` FROM comanda.sessions ORDER BY last_activity_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveSessionsIfUnchanged writes every session whose stored version still
// matches the one it was read with, in a single transaction. Sessions changed
// in the meantime are skipped.
func (d Datasource) SaveSessionsIfUnchanged(ctx context.Context, sessions []*model.Session) ([]*model.Session, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE comanda.sessions SET
			state = $2, scratch_buffer = $3, temp_fields = $4,
			warning_sent = $5, closing_warning_sent = $6,
			version = version + 1, updated_at = $7
		WHERE customer_phone = $1 AND version = $8
	`)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	now := time.Now()
	var saved []*model.Session
	for _, s := range sessions {
		tempFields, err := json.Marshal(s.TempFields)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		res, err := stmt.ExecContext(ctx, s.CustomerPhone, s.State, s.ScratchBuffer, tempFields,
			s.WarningSent, s.ClosingWarningSent, now, s.Version)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if n == 1 {
			s.Version++
			s.UpdatedAt = now
			saved = append(saved, s)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}
