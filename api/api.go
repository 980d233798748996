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
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/comanda"
	"github.com/blnkfinance/comanda/api/middleware"
	"github.com/blnkfinance/comanda/config"
	"github.com/blnkfinance/comanda/internal/delivery"
	"github.com/blnkfinance/comanda/model"
)

// Assistant is the conversation engine the API feeds.
type Assistant interface {
	HandleInbound(ctx context.Context, msg model.InboundMessage) error
	UpdateOrderStatus(ctx context.Context, idOrFolio, status string) (comanda.OrderStatusUpdate, error)
}

// Delivery exposes the outbound pipeline's metrics and manual resend.
type Delivery interface {
	Metrics() delivery.MetricsSnapshot
	Resend(ctx context.Context, outboundMessageID string) bool
}

type Api struct {
	assistant Assistant
	delivery  Delivery
	conf      *config.Configuration
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	provider := router.Group("/webhook")
	provider.GET("", a.VerifyWebhook)
	provider.POST("", middleware.SignatureMiddleware(a.conf.WhatsApp.AppSecret), a.ReceiveWebhook)

	staff := router.Group("/")
	if a.conf.Server.Secure {
		staff.Use(middleware.SecretKeyAuthMiddleware())
	}
	staff.GET("/metrics/delivery", a.GetDeliveryMetrics)
	staff.POST("/messages/:id/resend", a.ResendMessage)
	staff.PATCH("/orders/:id/status", a.UpdateOrderStatus)

	return a.router
}

func NewAPI(assistant Assistant, d Delivery) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Api{assistant: assistant, delivery: d, conf: conf, router: r}
}
