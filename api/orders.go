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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/comanda"
	apimodel "github.com/blnkfinance/comanda/api/model"
	"github.com/blnkfinance/comanda/internal/apierror"
	"github.com/blnkfinance/comanda/model"
)

func (a Api) UpdateOrderStatus(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var req apimodel.UpdateOrderStatus
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateUpdateOrderStatus(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.assistant.UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if errors.Is(err, model.ErrOrderAlreadyDelivered) || errors.Is(err, model.ErrOrderCancelled) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	switch result.Outcome {
	case comanda.StatusOrderNotFound:
		c.JSON(http.StatusNotFound, result)
	case comanda.StatusInvalid:
		c.JSON(http.StatusBadRequest, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}
