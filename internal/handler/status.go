package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glamtrack/internal/domain"
	"glamtrack/internal/relay"
)

// StatusHandler handles HTTP requests for order status pushes. It is
// the fallback path for backends that cannot publish to RabbitMQ.
type StatusHandler struct {
	tracker *relay.Tracker
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(tracker *relay.Tracker) *StatusHandler {
	return &StatusHandler{tracker: tracker}
}

// UpdateStatusRequest is the HTTP request for a status push.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatusResponse is the HTTP response for a status push.
type UpdateStatusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// UpdateStatus handles POST /v1/orders/:id/status
func (h *StatusHandler) UpdateStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status is required"})
		return
	}

	if err := h.tracker.HandleOrderStatus(c.Request.Context(), orderID, domain.OrderStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, UpdateStatusResponse{
		OrderID: orderID,
		Status:  req.Status,
	})
}
