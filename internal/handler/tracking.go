package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"glamtrack/internal/domain"
	"glamtrack/internal/geo"
	"glamtrack/internal/relay"
)

// TrackingHandler handles HTTP requests for tracking seeds.
type TrackingHandler struct {
	tracker *relay.Tracker
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(tracker *relay.Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

// PointResponse is a position in HTTP responses.
type PointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// TrackingSeedResponse is the HTTP response for the tracking seed.
// Clients use it to show the map before live updates start flowing.
type TrackingSeedResponse struct {
	OrderID        string         `json:"order_id"`
	CustomerID     string         `json:"customer_id"`
	ProfessionalID string         `json:"professional_id,omitempty"`
	Status         string         `json:"status"`
	Customer       *PointResponse `json:"customer_position,omitempty"`
	Professional   *PointResponse `json:"professional_position,omitempty"`
	DistanceKm     *float64       `json:"distance_km,omitempty"`
	ETAMinutes     *int           `json:"eta_minutes,omitempty"`
}

// GetTrackingSeed handles GET /v1/orders/:id/tracking
func (h *TrackingHandler) GetTrackingSeed(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.tracker.Seed(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := TrackingSeedResponse{
		OrderID:        order.OrderID,
		CustomerID:     order.CustomerID,
		ProfessionalID: order.ProfessionalID,
		Status:         string(order.Status),
		Customer:       pointResponse(order.CustomerPoint),
		Professional:   pointResponse(order.ProfessionalPoint),
	}

	if order.CustomerPoint != nil && order.ProfessionalPoint != nil {
		distance := geo.DistanceKm(*order.CustomerPoint, *order.ProfessionalPoint)
		response.DistanceKm = &distance
		if eta, ok := geo.ETAMinutes(distance, geo.DefaultSpeedKmh); ok {
			response.ETAMinutes = &eta
		}
	}

	respondJSON(c, http.StatusOK, response)
}

// pointResponse converts a stored position for the response.
func pointResponse(point *domain.GeoPoint) *PointResponse {
	if point == nil {
		return nil
	}
	resp := &PointResponse{
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
	}
	if !point.Timestamp.IsZero() {
		resp.Timestamp = point.Timestamp.Format(time.RFC3339)
	}
	return resp
}
