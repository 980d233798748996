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

package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{Redis: RedisConfig{Dns: "localhost:6379"}}
	err := cnf.validateAndAddDefaults()
	assert.EqualError(t, err, "data source DNS is required")

	cnf = Configuration{DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"}}
	err = cnf.validateAndAddDefaults()
	assert.EqualError(t, err, "redis DNS is required")

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: " some-dns "},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, "Comanda", cnf.ProjectName)
	assert.Equal(t, "some-dns", cnf.DataSource.Dns)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, DEFAULT_WHATSAPP_API_URL, cnf.WhatsApp.ApiURL)
	assert.Equal(t, 16, cnf.Ordering.LateOrderHour)
	assert.Equal(t, "cocina", cnf.Ordering.PrinterName)
	assert.Equal(t, 30, cnf.Session.TimeoutMinutes)
	assert.Equal(t, 5, cnf.Session.WarningMinutes)
	assert.Equal(t, 0.5, cnf.Delivery.FailureRatio)
	assert.Equal(t, 10, cnf.Delivery.MinimumThroughput)
	assert.Equal(t, 3, *cnf.Delivery.MaxRetries)
	assert.Equal(t, 20, cnf.Delivery.SendTimeoutSeconds)
	assert.Equal(t, 24, cnf.Dedup.TTLHours)
	assert.Equal(t, DEFAULT_PRINT_QUEUE, cnf.Queue.PrintQueue)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)
}

func TestValidateAndAddDefaults_InvalidValues(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Delivery:   DeliveryConfig{FailureRatio: 1.5},
	}
	assert.EqualError(t, cnf.validateAndAddDefaults(), "delivery failure ratio must be between 0 and 1")

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Session:    SessionConfig{TimeoutMinutes: 10, WarningMinutes: 20},
		Ordering:   OrderingConfig{TimeZone: "Mars/Olympus", LateOrderHour: 30},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 5, cnf.Session.WarningMinutes)
	assert.Equal(t, "UTC", cnf.Ordering.TimeZone)
	assert.Equal(t, 16, cnf.Ordering.LateOrderHour)
}

func TestDeliveryRetriesCanBeDisabled(t *testing.T) {
	zero, negative := 0, -2
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Delivery:   DeliveryConfig{MaxRetries: &zero},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 0, *cnf.Delivery.MaxRetries)

	cnf.Delivery.MaxRetries = &negative
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 0, *cnf.Delivery.MaxRetries)
}

func TestLoadConfigFromFile_ZeroRetries(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "comanda.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(`{"data_source":{"dns":"dns"},"redis":{"dns":"localhost:6379"},"delivery":{"max_retries":0}}`)
	require.NoError(t, err)
	tmpFile.Close()

	require.NoError(t, loadConfigFromFile(tmpFile.Name()))
	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 0, *loadedConfig.Delivery.MaxRetries)
}

func TestRateLimitDefaults(t *testing.T) {
	rps := 10.0
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, 20, *cnf.RateLimit.Burst)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "comanda.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Redis:       RedisConfig{Dns: "temp-redis"},
		Ordering:    OrderingConfig{LateOrderHour: 15},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sampleConfig))
	tmpFile.Close()

	t.Setenv("COMANDA_PROJECT_NAME", "Env Project")
	t.Setenv("COMANDA_ORDERING_PRINTER_NAME", "mostrador")

	require.NoError(t, loadConfigFromFile(tmpFile.Name()))

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "temp-dns", loadedConfig.DataSource.Dns)
	assert.Equal(t, 15, loadedConfig.Ordering.LateOrderHour)
	assert.Equal(t, "mostrador", loadedConfig.Ordering.PrinterName)
}

func TestInitConfig_EnvOnly(t *testing.T) {
	t.Setenv("COMANDA_DATA_SOURCE_DNS", "postgres://env")
	t.Setenv("COMANDA_REDIS_DNS", "localhost:6379")

	require.NoError(t, InitConfig("does-not-exist.json"))

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", loadedConfig.DataSource.Dns)
	assert.NotNil(t, loadedConfig.Location())
}
