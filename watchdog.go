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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/comanda/model"
)

// messagingWindow is how long after the last customer message the provider
// still accepts free-form messages to that customer.
const messagingWindow = 24 * time.Hour

// SweepReport counts what one watchdog tick did.
type SweepReport struct {
	Warned        int `json:"warned"`
	ClosingWarned int `json:"closing_warned"`
	Expired       int `json:"expired"`
	Skipped       int `json:"skipped"`
}

// sweepPass is one of the watchdog passes: a predicate over a fresh copy of the
// session and the change applied after its notice was sent.
type sweepPass struct {
	name   string
	due    func(s *model.Session, now time.Time) bool
	notice string
	apply  func(s *model.Session)
}

// SweepSessions warns and expires idle sessions. Each pass re-reads a session
// right before messaging it and writes the batch once, skipping sessions that
// changed since they were read. Cancelling ctx stops the remaining sends.
func (c *Comanda) SweepSessions(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "SweepSessions")
	defer span.End()

	var report SweepReport
	sessions, err := c.datasource.ListSessions(ctx)
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("list sessions: %w", err)
	}

	warning := time.Duration(c.settings.WarningMinutes(ctx)) * time.Minute
	closingLead := time.Duration(c.conf.Session.ClosingWarningMinutes) * time.Minute

	staff, err := c.datasource.FindStaffByRoles(ctx, []model.StaffRole{model.RoleAdmin, model.RoleSupervisor})
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("find staff: %w", err)
	}
	staffPhones := make(map[string]bool, len(staff))
	for _, member := range staff {
		staffPhones[member.Phone] = true
	}

	passes := []sweepPass{
		{
			name:   "expiring",
			due:    func(s *model.Session, now time.Time) bool { return isExpiringSoon(s, now, warning) },
			notice: msgSessionWarning,
			apply:  func(s *model.Session) { s.WarningSent = true },
		},
		{
			name: "window_closing",
			due: func(s *model.Session, now time.Time) bool {
				return staffPhones[s.CustomerPhone] && isWindowClosing(s, now, closingLead)
			},
			notice: msgWindowClosing,
			apply:  func(s *model.Session) { s.ClosingWarningSent = true },
		},
		{
			name:   "expired",
			due:    isTimedOut,
			notice: msgSessionExpired,
			apply:  func(s *model.Session) { s.Reset() },
		},
	}

	counters := []*int{&report.Warned, &report.ClosingWarned, &report.Expired}
	for i, pass := range passes {
		saved, skipped, err := c.runSweepPass(ctx, pass, sessions)
		report.Skipped += skipped
		*counters[i] += saved
		if err != nil {
			span.RecordError(err)
			return report, err
		}
		if ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.warned", report.Warned),
		attribute.Int("sweep.closing_warned", report.ClosingWarned),
		attribute.Int("sweep.expired", report.Expired),
	)
	return report, nil
}

func (c *Comanda) runSweepPass(ctx context.Context, pass sweepPass, sessions []*model.Session) (saved, skipped int, err error) {
	var batch []*model.Session
	for _, s := range sessions {
		if !pass.due(s, c.now()) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		fresh, err := c.datasource.GetSession(ctx, s.CustomerPhone)
		if err != nil {
			logrus.WithFields(logrus.Fields{"customer_phone": s.CustomerPhone, "pass": pass.name, "error": err}).Error("failed to re-read session")
			skipped++
			continue
		}
		if fresh == nil || !pass.due(fresh, c.now()) {
			skipped++
			continue
		}

		c.notifier.SendText(ctx, fresh.CustomerPhone, pass.notice)
		pass.apply(fresh)
		batch = append(batch, fresh)
	}

	if len(batch) == 0 {
		return 0, skipped, nil
	}
	// Sends already issued are recorded even when the tick was cancelled.
	stored, err := c.datasource.SaveSessionsIfUnchanged(context.WithoutCancel(ctx), batch)
	if err != nil {
		return 0, skipped, fmt.Errorf("save %s sessions: %w", pass.name, err)
	}
	skipped += len(batch) - len(stored)
	logrus.WithFields(logrus.Fields{"pass": pass.name, "saved": len(stored), "sent": len(batch)}).Debug("sweep pass finished")
	return len(stored), skipped, nil
}

func sessionTimeout(s *model.Session) time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// isExpiringSoon: timeout - warning <= elapsed < timeout, once per inactivity episode.
func isExpiringSoon(s *model.Session, now time.Time, warning time.Duration) bool {
	if s.State == model.StateStart || s.WarningSent {
		return false
	}
	elapsed, timeout := s.Elapsed(now), sessionTimeout(s)
	return elapsed >= timeout-warning && elapsed < timeout
}

// isWindowClosing: the provider messaging window closes within lead.
func isWindowClosing(s *model.Session, now time.Time, lead time.Duration) bool {
	if s.ClosingWarningSent {
		return false
	}
	elapsed := s.Elapsed(now)
	return elapsed >= messagingWindow-lead && elapsed < messagingWindow
}

func isTimedOut(s *model.Session, now time.Time) bool {
	return s.State != model.StateStart && s.Elapsed(now) >= sessionTimeout(s)
}
