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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/comanda"
	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/database"
	"github.com/blnkfinance/comanda/internal/delivery"
	"github.com/blnkfinance/comanda/internal/notification"
	redis_db "github.com/blnkfinance/comanda/internal/redis-db"
	"github.com/blnkfinance/comanda/internal/whatsapp"
)

// Comanda represents the CLI application, encapsulating the root Cobra command.
type Comanda struct {
	cmd *cobra.Command
}

// comandaInstance holds everything the commands share once configuration is loaded.
type comandaInstance struct {
	comanda  *comanda.Comanda
	pipeline *delivery.Pipeline
	queue    *comanda.Queue
	db       database.IDataSource
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the shared instance before any command runs.
func preRun(app *comandaInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if !needsRuntime(cmd) {
			return nil
		}

		if err := setupComanda(app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		return nil
	}
}

// needsRuntime reports whether cmd talks to Postgres, Redis and WhatsApp.
// Migrations run before the schema exists and config only prints.
func needsRuntime(cmd *cobra.Command) bool {
	if cmd.Name() == "config" {
		return false
	}
	return cmd.Parent() == nil || cmd.Parent().Name() != "migrate"
}

// setupComanda connects Postgres, Redis, the job queue and the WhatsApp
// delivery pipeline, then builds the conversation engine on top of them.
func setupComanda(app *comandaInstance, cfg *config.Configuration) error {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	rdb, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	queue, err := comanda.NewQueue(cfg)
	if err != nil {
		return fmt.Errorf("error creating queue: %v", err)
	}

	pipeline := delivery.NewPipeline(whatsapp.NewClient(cfg.WhatsApp, nil), db, delivery.OptionsFromConfig(cfg.Delivery))

	c, err := comanda.NewComanda(db, pipeline, queue, rdb.Client())
	if err != nil {
		return fmt.Errorf("error creating comanda: %v", err)
	}

	app.comanda = c
	app.pipeline = pipeline
	app.queue = queue
	app.db = db
	return nil
}

// NewCLI creates the command-line interface with the start, workers, migrate and config commands.
func NewCLI() *Comanda {
	var configFile string
	app := &comandaInstance{}

	var rootCmd = &cobra.Command{
		Use:   "comanda",
		Short: "WhatsApp ordering assistant",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./comanda.json", "Configuration file for comanda")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &Comanda{cmd: rootCmd}
}

func (w Comanda) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
