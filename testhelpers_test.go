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
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/internal/whatsapp"
	"github.com/blnkfinance/comanda/model"
)

// memDB is an in-memory datasource. Reads return copies so that only explicit
// writes change what is stored.
type memDB struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	customers map[string]*model.Customer
	orders    map[string]*model.Order
	settings  map[string]string
	staff     []model.Staff
	outbound  map[string]*model.OutboundMessage
	folioSeq  int

	beginErr       error
	createOrderErr error
	staffErr       error
	commits        int
	rollbacks      int
}

func newMemDB() *memDB {
	return &memDB{
		sessions:  map[string]*model.Session{},
		customers: map[string]*model.Customer{},
		orders:    map[string]*model.Order{},
		settings:  map[string]string{},
		outbound:  map[string]*model.OutboundMessage{},
	}
}

func copySession(s *model.Session) *model.Session {
	cp := *s
	return &cp
}

func copyCustomer(c *model.Customer) *model.Customer {
	cp := *c
	if c.Billing != nil {
		b := *c.Billing
		cp.Billing = &b
	}
	return &cp
}

func (m *memDB) putSession(s *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.CustomerPhone] = copySession(s)
}

func (m *memDB) putCustomer(c *model.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CustomerID == "" {
		c.CustomerID = model.GenerateUUIDWithSuffix("cus")
	}
	m.customers[c.Phone] = copyCustomer(c)
}

func (m *memDB) session(phone string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[phone]
	if !ok {
		return nil
	}
	return copySession(s)
}

func (m *memDB) customer(phone string) *model.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[phone]
	if !ok {
		return nil
	}
	return copyCustomer(c)
}

func (m *memDB) orderList() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folio < out[j].Folio })
	return out
}

func (m *memDB) GetSession(_ context.Context, phone string) (*model.Session, error) {
	return m.session(phone), nil
}

func (m *memDB) CreateSession(_ context.Context, phone string, timeoutMinutes int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[phone]; ok {
		return copySession(s), nil
	}
	s := model.NewSession(phone, timeoutMinutes, time.Now())
	s.Version = 1
	m.sessions[phone] = copySession(s)
	return s, nil
}

func (m *memDB) upsertSessionLocked(s *model.Session) {
	if old, ok := m.sessions[s.CustomerPhone]; ok {
		s.Version = old.Version + 1
	} else {
		s.Version = 1
	}
	m.sessions[s.CustomerPhone] = copySession(s)
}

func (m *memDB) checkVersionLocked(s *model.Session) error {
	if old, ok := m.sessions[s.CustomerPhone]; ok && old.Version != s.Version {
		return fmt.Errorf("%w: %s", database.ErrSessionChanged, s.CustomerPhone)
	}
	return nil
}

func (m *memDB) UpsertSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersionLocked(s); err != nil {
		return err
	}
	m.upsertSessionLocked(s)
	return nil
}

func (m *memDB) ListSessions(_ context.Context) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerPhone < out[j].CustomerPhone })
	return out, nil
}

func (m *memDB) SaveSessionsIfUnchanged(_ context.Context, sessions []*model.Session) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var saved []*model.Session
	for _, s := range sessions {
		stored, ok := m.sessions[s.CustomerPhone]
		if !ok || stored.Version != s.Version {
			continue
		}
		s.Version++
		m.sessions[s.CustomerPhone] = copySession(s)
		saved = append(saved, s)
	}
	return saved, nil
}

func (m *memDB) GetCustomerByPhone(_ context.Context, phone string) (*model.Customer, error) {
	return m.customer(phone), nil
}

func (m *memDB) UpsertCustomer(_ context.Context, c *model.Customer) error {
	m.putCustomer(c)
	return nil
}

func (m *memDB) GetOrder(_ context.Context, idOrFolio string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderID == idOrFolio || o.Folio == idOrFolio {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDB) UpdateOrderStatus(_ context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	o.Status = status
	o.UpdatedAt = at
	return nil
}

func (m *memDB) CreateOutboundMessage(_ context.Context, msg *model.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.DeliveryStatus = model.DeliveryPending
	m.outbound[msg.MessageID] = &cp
	return nil
}

func (m *memDB) settle(messageID string, status model.DeliveryStatus, reason string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[messageID]
	if !ok || msg.DeliveryStatus != model.DeliveryPending {
		return database.ErrNotPending
	}
	msg.DeliveryStatus = status
	msg.FailureReason = reason
	msg.Attempts = attempts
	return nil
}

func (m *memDB) MarkOutboundSent(_ context.Context, messageID, _ string, attempts int) error {
	return m.settle(messageID, model.DeliverySent, "", attempts)
}

func (m *memDB) MarkOutboundFailed(_ context.Context, messageID, reason string, attempts int) error {
	return m.settle(messageID, model.DeliveryFailed, reason, attempts)
}

func (m *memDB) GetOutboundMessage(_ context.Context, messageID string) (*model.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[messageID]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (m *memDB) GetStuckOutboundMessages(_ context.Context, olderThan time.Time, limit int) ([]*model.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutboundMessage
	for _, msg := range m.outbound {
		if msg.DeliveryStatus == model.DeliveryPending && msg.CreatedAt.Before(olderThan) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDB) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *memDB) FindStaffByRoles(_ context.Context, roles []model.StaffRole) ([]model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staffErr != nil {
		return nil, m.staffErr
	}
	var out []model.Staff
	for _, s := range m.staff {
		for _, r := range roles {
			if s.Role == r && s.Phone != "" {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m *memDB) BeginTx(context.Context) (database.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memTx{db: m, customers: map[string]*model.Customer{}}, nil
}

// memTx stages writes until Commit.
type memTx struct {
	db        *memDB
	customers map[string]*model.Customer
	orders    []*model.Order
	session   *model.Session
	done      bool
}

func (t *memTx) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	if c, ok := t.customers[phone]; ok {
		return copyCustomer(c), nil
	}
	return t.db.GetCustomerByPhone(ctx, phone)
}

func (t *memTx) UpsertCustomer(_ context.Context, c *model.Customer) error {
	if c.CustomerID == "" {
		c.CustomerID = model.GenerateUUIDWithSuffix("cus")
	}
	t.customers[c.Phone] = copyCustomer(c)
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *model.Order) error {
	if t.db.createOrderErr != nil {
		return t.db.createOrderErr
	}
	t.db.mu.Lock()
	t.db.folioSeq++
	seq := t.db.folioSeq
	t.db.mu.Unlock()

	o.OrderID = model.GenerateUUIDWithSuffix("ord")
	o.Folio = model.FormatFolio(o.CreatedAt, seq)
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	cp := *o
	t.orders = append(t.orders, &cp)
	return nil
}

func (t *memTx) UpsertSession(_ context.Context, s *model.Session) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if err := t.db.checkVersionLocked(s); err != nil {
		return err
	}
	t.session = s
	return nil
}

func (t *memTx) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for phone, c := range t.customers {
		t.db.customers[phone] = c
	}
	for _, o := range t.orders {
		t.db.orders[o.OrderID] = o
	}
	if t.session != nil {
		t.db.upsertSessionLocked(t.session)
	}
	t.db.commits++
	t.done = true
	return nil
}

func (t *memTx) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	t.done = true
	return nil
}

type sentMessage struct {
	To      string
	Kind    model.PayloadKind
	Body    string
	Buttons []string
	Rows    []string
}

// recordingNotifier records every send. With fail set every send reports false.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	read []string
	fail bool
	// onSend runs once, outside the lock, on the next send
	onSend func()
}

func (n *recordingNotifier) record(m sentMessage) bool {
	n.mu.Lock()
	n.sent = append(n.sent, m)
	ok := !n.fail
	hook := n.onSend
	n.onSend = nil
	n.mu.Unlock()

	if hook != nil {
		hook()
	}
	return ok
}

func (n *recordingNotifier) SendText(_ context.Context, to, body string) bool {
	return n.record(sentMessage{To: to, Kind: model.PayloadText, Body: body})
}

func (n *recordingNotifier) SendButtons(_ context.Context, to string, msg whatsapp.ButtonMessage) bool {
	ids := make([]string, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		ids = append(ids, b.ID)
	}
	return n.record(sentMessage{To: to, Kind: model.PayloadButtons, Body: msg.Body, Buttons: ids})
}

func (n *recordingNotifier) SendList(_ context.Context, to string, msg whatsapp.ListMessage) bool {
	var ids []string
	for _, s := range msg.Sections {
		for _, r := range s.Rows {
			ids = append(ids, r.ID)
		}
	}
	return n.record(sentMessage{To: to, Kind: model.PayloadList, Body: msg.Body, Rows: ids})
}

func (n *recordingNotifier) MarkRead(_ context.Context, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.read = append(n.read, id)
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) last() sentMessage {
	msgs := n.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

func (n *recordingNotifier) sentTo(phone string) []sentMessage {
	var out []sentMessage
	for _, m := range n.messages() {
		if m.To == phone {
			out = append(out, m)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type fakeQueue struct {
	mu         sync.Mutex
	printJobs  []model.PrintJob
	webhooks   []NewWebhook
	printErr   error
	webhookErr error
}

func (q *fakeQueue) EnqueuePrintJob(_ context.Context, job model.PrintJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.printErr != nil {
		return q.printErr
	}
	q.printJobs = append(q.printJobs, job)
	return nil
}

func (q *fakeQueue) EnqueueWebhook(_ context.Context, hook NewWebhook) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.webhookErr != nil {
		return q.webhookErr
	}
	q.webhooks = append(q.webhooks, hook)
	return nil
}

const customerPhone = "5215512345678"

type harness struct {
	c        *Comanda
	db       *memDB
	notifier *recordingNotifier
	queue    *fakeQueue
	mr       *miniredis.Miniredis
	now      time.Time
	seq      int
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		ProjectName: "Carnicería La Res",
		Session:     config.SessionConfig{TimeoutMinutes: 30, WarningMinutes: 5, ClosingWarningMinutes: 60, SweepIntervalSeconds: 60},
		Ordering: config.OrderingConfig{
			LateOrderHour: 16,
			TimeZone:      "UTC",
			PrinterName:   "cocina",
			BusinessHours: "Lunes a sábado de 8:00 a 18:00",
		},
		Dedup: config.DedupConfig{TTLHours: 24},
		Queue: config.QueueConfig{PrintQueue: "print_jobs", WebhookQueue: "dashboard_webhooks", SweepQueue: "session_sweeps", PrintRetries: 5},
	}
}

// newHarness builds a Comanda over in-memory fakes. The clock starts at 10:00 UTC.
func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(testConfig())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		db:       newMemDB(),
		notifier: &recordingNotifier{},
		queue:    &fakeQueue{},
		mr:       mr,
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h.c, err = NewComanda(h.db, h.notifier, h.queue, client)
	require.NoError(t, err)
	h.c.now = func() time.Time { return h.now }
	return h
}

// completeCustomer stores a customer with name and address.
func (h *harness) completeCustomer() *model.Customer {
	c := &model.Customer{Phone: customerPhone, Name: "Ana López", Address: "Av. Juárez 10, Centro"}
	h.db.putCustomer(c)
	return c
}

// inState stores a session for the test customer in state, active now.
func (h *harness) inState(state model.State, buffer string) {
	s := model.NewSession(customerPhone, 30, h.now)
	s.State = state
	s.ScratchBuffer = buffer
	s.Version = 1
	h.db.putSession(s)
}

func (h *harness) send(t *testing.T, typ model.MessageType, content string) {
	t.Helper()
	h.seq++
	err := h.c.HandleInbound(context.Background(), model.InboundMessage{
		ProviderMessageID: fmt.Sprintf("wamid.%04d", h.seq),
		From:              customerPhone,
		Type:              typ,
		Content:           content,
		Timestamp:         h.now,
	})
	require.NoError(t, err)
}

func (h *harness) text(t *testing.T, content string) {
	t.Helper()
	h.send(t, model.MessageText, content)
}

func (h *harness) tap(t *testing.T, id string) {
	t.Helper()
	h.send(t, model.MessageInteractive, id)
}

func (h *harness) state() model.State {
	return h.db.session(customerPhone).State
}
