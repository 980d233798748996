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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/config"
	redis_db "github.com/blnkfinance/comanda/internal/redis-db"
	"github.com/blnkfinance/comanda/model"
)

// Task types handled by the workers.
const (
	TaskPrintJob         = "print:job"
	TaskDashboardWebhook = "webhook:dashboard"
	TaskSessionSweep     = "session:sweep"
	TaskOutboundRecovery = "outbound:recover"
)

// Queue enqueues background work on Redis through asynq.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      *config.Configuration
}

// NewQueue connects a Queue to the configured Redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		conf:      conf,
	}, nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.Error(err)
	}
	return q.Client.Close()
}

// EnqueuePrintJob queues a ticket for the kitchen printer. The first print of
// an order is enqueued once; duplicates (reprints) always get a new task.
func (q *Queue) EnqueuePrintJob(ctx context.Context, job model.PrintJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(q.conf.Queue.PrintQueue),
		asynq.MaxRetry(q.conf.Queue.PrintRetries),
	}
	if !job.Duplicate {
		opts = append(opts, asynq.TaskID("print_"+job.OrderID))
	}

	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(TaskPrintJob, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("order_id", job.OrderID).Info("print job already queued")
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"order_id": job.OrderID, "task_id": info.ID, "printer": job.PrinterName}).Info("print job enqueued")
	return nil
}

// EnqueueWebhook queues a dashboard notification. It is a no-op when no
// dashboard webhook is configured.
func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	if q.conf.Notification.Webhook.Url == "" {
		return nil
	}
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	_, err = q.Client.EnqueueContext(ctx, asynq.NewTask(TaskDashboardWebhook, payload), asynq.Queue(q.conf.Queue.WebhookQueue))
	return err
}

// SweepTask is the periodic task that runs the session watchdog. Ticks that
// are still waiting when the next one is due are not piled up.
func SweepTask(conf *config.Configuration) *asynq.Task {
	interval := time.Duration(conf.Session.SweepIntervalSeconds) * time.Second
	return asynq.NewTask(TaskSessionSweep, nil,
		asynq.Queue(conf.Queue.SweepQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
}

// ProcessSessionSweep runs one watchdog tick for the workers.
func (c *Comanda) ProcessSessionSweep(ctx context.Context, _ *asynq.Task) error {
	report, err := c.SweepSessions(ctx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"warned":         report.Warned,
		"closing_warned": report.ClosingWarned,
		"expired":        report.Expired,
		"skipped":        report.Skipped,
	}).Info("session sweep finished")
	return nil
}
