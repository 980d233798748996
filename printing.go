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
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/comanda/internal/request"
	"github.com/blnkfinance/comanda/model"
)

// Ticket is the document sent to the print server.
type Ticket struct {
	Printer   string `json:"printer"`
	Folio     string `json:"folio"`
	Customer  string `json:"customer"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Payment   string `json:"payment"`
	Items     string `json:"items"`
	LateOrder bool   `json:"late_order"`
	Duplicate bool   `json:"duplicate"`
	CreatedAt string `json:"created_at"`
}

func (c *Comanda) ticketFor(order *model.Order, job model.PrintJob) Ticket {
	return Ticket{
		Printer:   job.PrinterName,
		Folio:     order.Folio,
		Customer:  order.CustomerName,
		Phone:     order.CustomerPhone,
		Address:   order.Address,
		Payment:   order.PaymentMethod.Label(),
		Items:     order.Items,
		LateOrder: order.LateOrder,
		Duplicate: job.Duplicate,
		CreatedAt: order.CreatedAt.In(c.conf.Location()).Format("02/01/2006 15:04"),
	}
}

// ProcessPrintJob sends an order ticket to the print server. Returned errors
// make asynq retry the job; orders that no longer exist are not retried.
func (c *Comanda) ProcessPrintJob(ctx context.Context, task *asynq.Task) error {
	var job model.PrintJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("decode print job: %v: %w", err, asynq.SkipRetry)
	}

	printServer := strings.TrimRight(c.conf.Ordering.PrintServerURL, "/")
	if printServer == "" {
		logrus.WithField("order_id", job.OrderID).Warn("print server not configured, dropping print job")
		return nil
	}

	order, err := c.datasource.GetOrder(ctx, job.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %s not found: %w", job.OrderID, asynq.SkipRetry)
	}

	if _, err := request.PostJSON(ctx, printServer+"/print", nil, c.ticketFor(order, job), nil); err != nil {
		return fmt.Errorf("print order %s: %w", order.Folio, err)
	}
	logrus.WithFields(logrus.Fields{"order_id": order.OrderID, "folio": order.Folio, "printer": job.PrinterName}).Info("ticket printed")
	return nil
}
