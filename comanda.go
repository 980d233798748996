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
	"embed"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/internal/cache"
	"github.com/blnkfinance/comanda/internal/dedup"
	"github.com/blnkfinance/comanda/internal/whatsapp"
	"github.com/blnkfinance/comanda/model"
)

var tracer = otel.Tracer("comanda.conversation")

//go:embed sql/*.sql
var SQLFiles embed.FS

const (
	customerLockTTL  = 30 * time.Second
	customerLockWait = 10 * time.Second
)

// Notifier delivers outbound messages to customers. Sends report false when the
// message could not be delivered; callers never roll back on a failed send.
type Notifier interface {
	SendText(ctx context.Context, to, body string) bool
	SendButtons(ctx context.Context, to string, msg whatsapp.ButtonMessage) bool
	SendList(ctx context.Context, to string, msg whatsapp.ListMessage) bool
	MarkRead(ctx context.Context, providerMessageID string)
}

// JobQueue hands work to the background workers. Enqueue failures are logged
// by callers and never fail the conversation.
type JobQueue interface {
	EnqueuePrintJob(ctx context.Context, job model.PrintJob) error
	EnqueueWebhook(ctx context.Context, hook NewWebhook) error
}

// Comanda runs the ordering conversation for every customer.
type Comanda struct {
	datasource database.IDataSource
	notifier   Notifier
	queue      JobQueue
	redis      redis.UniversalClient
	gate       *dedup.Gate
	settings   *Settings
	conf       *config.Configuration
	handlers   map[model.State]stateHandler
	now        func() time.Time
	lockTTL    time.Duration
}

// NewComanda wires the conversation engine. The Redis client backs the inbound
// dedup gate, the per-customer locks and the settings cache.
func NewComanda(db database.IDataSource, notifier Notifier, queue JobQueue, redisClient redis.UniversalClient) (*Comanda, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	c := &Comanda{
		datasource: db,
		notifier:   notifier,
		queue:      queue,
		redis:      redisClient,
		gate:       dedup.NewGate(redisClient, time.Duration(cfg.Dedup.TTLHours)*time.Hour),
		settings:   NewSettings(db, cache.NewCache(redisClient, time.Minute), cfg),
		conf:       cfg,
		now:        time.Now,
		lockTTL:    customerLockTTL,
	}
	c.handlers = c.registry()
	return c, nil
}

// Settings exposes the runtime business settings.
func (c *Comanda) Settings() *Settings {
	return c.settings
}
