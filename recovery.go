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
	"sync"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/model"
)

const (
	// MinOutboundStuckThreshold keeps recovery away from sends still retrying.
	MinOutboundStuckThreshold = 5 * time.Minute
	outboundRecoveryBatch     = 200
	outboundRecoveryWorkers   = 5
	outboundRecoveryInterval  = 5 * time.Minute
	abandonedReason           = "abandoned"
)

// RecoverStuckOutbound settles outbound messages left PENDING for longer than
// threshold, which only happens when a process died mid-send. They are marked
// FAILED so the log never keeps an unsettled row. It returns how many were settled.
func (c *Comanda) RecoverStuckOutbound(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < MinOutboundStuckThreshold {
		threshold = MinOutboundStuckThreshold
	}

	stuck, err := c.datasource.GetStuckOutboundMessages(ctx, c.now().Add(-threshold), outboundRecoveryBatch)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	logrus.Infof("settling %d stuck outbound messages (threshold=%v)", len(stuck), threshold)

	var recovered atomic.Int64
	sem := make(chan struct{}, outboundRecoveryWorkers)
	var wg sync.WaitGroup
	for _, msg := range stuck {
		sem <- struct{}{}
		wg.Add(1)
		go func(m *model.OutboundMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			err := c.datasource.MarkOutboundFailed(ctx, m.MessageID, abandonedReason, m.Attempts)
			switch {
			case errors.Is(err, database.ErrNotPending):
				// settled by its sender in the meantime
			case err != nil:
				logrus.WithFields(logrus.Fields{"message_id": m.MessageID, "error": err}).Error("failed to settle stuck outbound message")
			default:
				recovered.Add(1)
			}
		}(msg)
	}
	wg.Wait()
	return int(recovered.Load()), nil
}

// OutboundRecoveryTask is the periodic task that settles stuck outbound messages.
func OutboundRecoveryTask(conf *config.Configuration) *asynq.Task {
	return asynq.NewTask(TaskOutboundRecovery, nil,
		asynq.Queue(conf.Queue.SweepQueue),
		asynq.MaxRetry(0),
		asynq.Unique(outboundRecoveryInterval),
	)
}

// OutboundRecoverySchedule is the scheduler entry for OutboundRecoveryTask.
func OutboundRecoverySchedule() string {
	return "@every " + outboundRecoveryInterval.String()
}

func (c *Comanda) ProcessOutboundRecovery(ctx context.Context, _ *asynq.Task) error {
	n, err := c.RecoverStuckOutbound(ctx, 2*MinOutboundStuckThreshold)
	if err != nil {
		return err
	}
	if n > 0 {
		logrus.WithField("settled", n).Warn("stuck outbound messages marked as failed")
	}
	return nil
}
