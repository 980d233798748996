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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Session methods

func (m *MockDataSource) GetSession(ctx context.Context, phone string) (*model.Session, error) {
	args := m.Called(ctx, phone)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockDataSource) CreateSession(ctx context.Context, phone string, timeoutMinutes int) (*model.Session, error) {
	args := m.Called(ctx, phone, timeoutMinutes)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockDataSource) UpsertSession(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockDataSource) ListSessions(ctx context.Context) ([]*model.Session, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]*model.Session)
	return s, args.Error(1)
}

func (m *MockDataSource) SaveSessionsIfUnchanged(ctx context.Context, sessions []*model.Session) ([]*model.Session, error) {
	args := m.Called(ctx, sessions)
	s, _ := args.Get(0).([]*model.Session)
	return s, args.Error(1)
}

// Customer methods

func (m *MockDataSource) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	c, _ := args.Get(0).(*model.Customer)
	return c, args.Error(1)
}

func (m *MockDataSource) UpsertCustomer(ctx context.Context, customer *model.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

// Order methods

func (m *MockDataSource) GetOrder(ctx context.Context, idOrFolio string) (*model.Order, error) {
	args := m.Called(ctx, idOrFolio)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockDataSource) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	args := m.Called(ctx, orderID, status, at)
	return args.Error(0)
}

// Outbound message methods

func (m *MockDataSource) CreateOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockDataSource) MarkOutboundSent(ctx context.Context, messageID, providerMessageID string, attempts int) error {
	args := m.Called(ctx, messageID, providerMessageID, attempts)
	return args.Error(0)
}

func (m *MockDataSource) MarkOutboundFailed(ctx context.Context, messageID, reason string, attempts int) error {
	args := m.Called(ctx, messageID, reason, attempts)
	return args.Error(0)
}

func (m *MockDataSource) GetOutboundMessage(ctx context.Context, messageID string) (*model.OutboundMessage, error) {
	args := m.Called(ctx, messageID)
	o, _ := args.Get(0).(*model.OutboundMessage)
	return o, args.Error(1)
}

func (m *MockDataSource) GetStuckOutboundMessages(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboundMessage, error) {
	args := m.Called(ctx, olderThan, limit)
	msgs, _ := args.Get(0).([]*model.OutboundMessage)
	return msgs, args.Error(1)
}

// Settings and staff methods

func (m *MockDataSource) GetSetting(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) FindStaffByRoles(ctx context.Context, roles []model.StaffRole) ([]model.Staff, error) {
	args := m.Called(ctx, roles)
	s, _ := args.Get(0).([]model.Staff)
	return s, args.Error(1)
}

func (m *MockDataSource) BeginTx(ctx context.Context) (database.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(database.Tx)
	return tx, args.Error(1)
}

// MockTx is a mock implementation of the Tx interface
type MockTx struct {
	mock.Mock
}

func (m *MockTx) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	c, _ := args.Get(0).(*model.Customer)
	return c, args.Error(1)
}

func (m *MockTx) UpsertCustomer(ctx context.Context, customer *model.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

func (m *MockTx) CreateOrder(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockTx) UpsertSession(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockTx) Commit() error {
	return m.Called().Error(0)
}

func (m *MockTx) Rollback() error {
	return m.Called().Error(0)
}
