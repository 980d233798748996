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

// Package dedup drops provider redeliveries of inbound messages.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix  = "inbound:msg:"
	DefaultTTL = 24 * time.Hour
)

// Gate records each provider message id once. The marker is written with a
// single SET NX so two workers racing on the same id cannot both proceed.
type Gate struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewGate(client redis.UniversalClient, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{client: client, ttl: ttl}
}

// ShouldProcess reports true the first time id is seen within the TTL and
// false afterwards. Ids that are empty cannot be deduplicated and are always processed.
func (g *Gate) ShouldProcess(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		logrus.Warn("inbound message without provider id, skipping deduplication")
		return true, nil
	}

	first, err := g.client.SetNX(ctx, keyPrefix+id, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	if !first {
		logrus.WithField("provider_message_id", id).Debug("duplicate inbound message dropped")
	}
	return first, nil
}
