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
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/comanda"
	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/internal/notification"
	redis_db "github.com/blnkfinance/comanda/internal/redis-db"
)

func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.PrintQueue:   3,
		cfg.Queue.WebhookQueue: 2,
		cfg.Queue.SweepQueue:   1,
	}
}

// reportExhausted alerts staff when a task has used up its retries.
func reportExhausted(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logrus.WithFields(logrus.Fields{"task": task.Type(), "retried": retried, "error": err}).Warn("task failed")
	if retried >= maxRetry {
		notification.NotifyError(fmt.Errorf("task %s failed after %d retries: %w", task.Type(), retried, err))
	}
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	opt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency:  conf.Queue.WorkerPoolSize,
		Queues:       initializeQueues(conf),
		ErrorHandler: asynq.ErrorHandlerFunc(reportExhausted),
		Logger:       logrus.StandardLogger(),
	}), nil
}

// initializeScheduler registers the periodic session sweep and the stuck outbound recovery.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	opt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: conf.Location(),
		Logger:   logrus.StandardLogger(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil && err != asynq.ErrDuplicateTask {
				logrus.WithError(err).Error("failed to enqueue periodic task")
			}
		},
	})
	schedule := fmt.Sprintf("@every %ds", conf.Session.SweepIntervalSeconds)
	if _, err := scheduler.Register(schedule, comanda.SweepTask(conf)); err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(comanda.OutboundRecoverySchedule(), comanda.OutboundRecoveryTask(conf)); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func initializeTaskHandlers(app *comandaInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(comanda.TaskPrintJob, app.comanda.ProcessPrintJob)
	mux.HandleFunc(comanda.TaskDashboardWebhook, comanda.ProcessWebhook)
	mux.HandleFunc(comanda.TaskSessionSweep, app.comanda.ProcessSessionSweep)
	mux.HandleFunc(comanda.TaskOutboundRecovery, app.comanda.ProcessOutboundRecovery)
}

// workerCommands defines the "workers" command: print jobs, dashboard
// webhooks and the session watchdog tick.
func workerCommands(app *comandaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start comanda workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			shutdown, err := initializeTracing(ctx, app.cnf, "COMANDA_WORKERS")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(app.cnf)
			if err != nil {
				log.Fatal(err)
			}

			scheduler, err := initializeScheduler(app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			if err := srv.Start(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
			<-ctx.Done()
			srv.Shutdown()
		},
	}

	return cmd
}
