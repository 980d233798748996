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
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/comanda/config"
)

const redacted = "********"

// redact returns a copy of cnf with credentials masked.
func redact(cnf config.Configuration) config.Configuration {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cnf.Server.SecretKey)
	mask(&cnf.DataSource.Dns)
	mask(&cnf.Redis.Dns)
	mask(&cnf.WhatsApp.AccessToken)
	mask(&cnf.WhatsApp.VerifyToken)
	mask(&cnf.WhatsApp.AppSecret)
	mask(&cnf.Notification.Slack.WebhookUrl)
	return cnf
}

// configCommands prints the effective configuration after defaults and environment overrides.
func configCommands(app *comandaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			if app.cnf == nil {
				log.Fatal("Error getting config: not loaded")
			}

			data, err := json.MarshalIndent(redact(*app.cnf), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
