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
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/internal/cache"
)

// Keys of the runtime settings table.
const (
	SettingLateOrderHour         = "late_order_hour"
	SettingSessionTimeoutMinutes = "session_timeout_minutes"
	SettingSessionWarningMinutes = "session_warning_minutes"
	SettingPrinterName           = "printer_name"
)

const settingsCacheTTL = 5 * time.Minute

type settingStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

type cachedSetting struct {
	Value string
	Found bool
}

// Settings reads business settings that staff can change without a deploy.
// Values are cached and fall back to the file/env configuration when unset or unreadable.
type Settings struct {
	store settingStore
	cache cache.Cache
	conf  *config.Configuration
}

func NewSettings(store settingStore, c cache.Cache, conf *config.Configuration) *Settings {
	return &Settings{store: store, cache: c, conf: conf}
}

func settingCacheKey(key string) string {
	return "settings:" + key
}

func (s *Settings) lookup(ctx context.Context, key string) (string, bool) {
	var v cachedSetting
	err := s.cache.Remember(ctx, settingCacheKey(key), settingsCacheTTL, &v, func() (interface{}, error) {
		value, found, err := s.store.GetSetting(ctx, key)
		if err != nil {
			return nil, err
		}
		return cachedSetting{Value: value, Found: found}, nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"setting": key, "error": err}).Warn("failed to read setting, using configured default")
		return "", false
	}
	return strings.TrimSpace(v.Value), v.Found && strings.TrimSpace(v.Value) != ""
}

func (s *Settings) intValue(ctx context.Context, key string, fallback, min, max int) int {
	raw, ok := s.lookup(ctx, key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		logrus.WithFields(logrus.Fields{"setting": key, "value": raw}).Warn("invalid setting value, using configured default")
		return fallback
	}
	return n
}

// Invalidate drops the cached value of key so the next read goes to the store.
func (s *Settings) Invalidate(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, settingCacheKey(key))
}

// LateOrderHour is the local hour from which new orders need an explicit confirmation.
func (s *Settings) LateOrderHour(ctx context.Context) int {
	return s.intValue(ctx, SettingLateOrderHour, s.conf.Ordering.LateOrderHour, 0, 23)
}

func (s *Settings) SessionTimeoutMinutes(ctx context.Context) int {
	return s.intValue(ctx, SettingSessionTimeoutMinutes, s.conf.Session.TimeoutMinutes, 1, 24*60)
}

// WarningMinutes is how long before expiry the inactivity warning goes out.
func (s *Settings) WarningMinutes(ctx context.Context) int {
	return s.intValue(ctx, SettingSessionWarningMinutes, s.conf.Session.WarningMinutes, 1, 24*60)
}

func (s *Settings) PrinterName(ctx context.Context) string {
	if v, ok := s.lookup(ctx, SettingPrinterName); ok {
		return v
	}
	return s.conf.Ordering.PrinterName
}
