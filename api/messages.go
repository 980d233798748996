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
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a Api) GetDeliveryMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.delivery.Metrics())
}

// ResendMessage sends the stored payload of an outbound message again as a new record.
func (a Api) ResendMessage(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	if !a.delivery.Resend(c.Request.Context(), id) {
		c.JSON(http.StatusBadGateway, gin.H{"message_id": id, "resent": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id, "resent": true})
}
