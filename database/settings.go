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

	"github.com/blnkfinance/comanda/model"
	"github.com/lib/pq"
)

// GetSetting reads one runtime business setting. The bool is false when the key is not set.
func (d Datasource) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.Conn.QueryRowContext(ctx, `SELECT value FROM comanda.settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// FindStaffByRoles returns staff members holding any of roles who have a phone on file.
func (d Datasource) FindStaffByRoles(ctx context.Context, roles []model.StaffRole) ([]model.Staff, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT staff_id, name, phone, role
		FROM comanda.staff
		WHERE role = ANY($1) AND phone <> ''
		ORDER BY name
	`, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.StaffID, &s.Name, &s.Phone, &s.Role); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}
