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
	"time"

	"github.com/blnkfinance/comanda/model"
)

// IDataSource groups every persistence operation the ordering service needs.
type IDataSource interface {
	session
	customer
	order
	outbound
	settings
	staff
	// BeginTx opens a unit of work spanning customer, order and session writes.
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Callers must finish it with Commit or Rollback.
type Tx interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error)
	UpsertCustomer(ctx context.Context, customer *model.Customer) error
	CreateOrder(ctx context.Context, order *model.Order) error
	UpsertSession(ctx context.Context, session *model.Session) error
	Commit() error
	Rollback() error
}

type session interface {
	GetSession(ctx context.Context, phone string) (*model.Session, error)                              // Returns nil when the customer has no session yet
	CreateSession(ctx context.Context, phone string, timeoutMinutes int) (*model.Session, error)       // Creates a START session, or returns the existing one
	UpsertSession(ctx context.Context, session *model.Session) error                                   // Writes the session if its version is unchanged and bumps it; ErrSessionChanged otherwise
	ListSessions(ctx context.Context) ([]*model.Session, error)                                         // All sessions, for the watchdog
	SaveSessionsIfUnchanged(ctx context.Context, sessions []*model.Session) ([]*model.Session, error) // Batch write guarded by version; returns the sessions actually saved
}

type customer interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error)
	UpsertCustomer(ctx context.Context, customer *model.Customer) error
}

type order interface {
	GetOrder(ctx context.Context, idOrFolio string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error
}

type outbound interface {
	CreateOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error
	MarkOutboundSent(ctx context.Context, messageID, providerMessageID string, attempts int) error
	MarkOutboundFailed(ctx context.Context, messageID, reason string, attempts int) error
	GetOutboundMessage(ctx context.Context, messageID string) (*model.OutboundMessage, error)
	GetStuckOutboundMessages(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboundMessage, error)
}

type settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

type staff interface {
	FindStaffByRoles(ctx context.Context, roles []model.StaffRole) ([]model.Staff, error)
}
