// README: Order handlers for create/get/cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediroute/internal/modules/order"
	"mediroute/internal/modules/tracking"
	"mediroute/internal/types"
)

type OrderHandler struct {
	order   *order.Service
	tracker *tracking.Service
}

func NewOrderHandler(svc *order.Service, tracker *tracking.Service) *OrderHandler {
	return &OrderHandler{order: svc, tracker: tracker}
}

type createOrderReq struct {
	HospitalID     string  `json:"hospital_id"`
	SampleType     string  `json:"sample_type"`
	SampleQuantity int     `json:"sample_quantity"`
	Urgency        string  `json:"urgency"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DeliveryLat    float64 `json:"delivery_lat"`
	DeliveryLng    float64 `json:"delivery_lng"`
	Instructions   string  `json:"instructions"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.HospitalID == "" || req.SampleType == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	id, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		HospitalID: types.ID(req.HospitalID),
		Sample: order.Sample{
			Type:     req.SampleType,
			Quantity: req.SampleQuantity,
			Urgency:  req.Urgency,
		},
		Pickup:       types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Delivery:     types.Point{Lat: req.DeliveryLat, Lng: req.DeliveryLng},
		Instructions: req.Instructions,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"order_id": id, "status": order.StatusCreated})
}

type orderResp struct {
	OrderID      types.ID     `json:"order_id"`
	HospitalID   types.ID     `json:"hospital_id"`
	Status       order.Status `json:"status"`
	Rider        *order.Rider `json:"rider,omitempty"`
	Sample       order.Sample `json:"sample"`
	Pickup       types.Point  `json:"pickup"`
	Delivery     types.Point  `json:"delivery"`
	Instructions string       `json:"instructions,omitempty"`
	CancelReason *string      `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	DeliveredAt  *time.Time   `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
}

func orderResponse(o *order.Order) orderResp {
	return orderResp{
		OrderID:      o.ID,
		HospitalID:   o.HospitalID,
		Status:       o.Status,
		Rider:        o.Rider,
		Sample:       o.Sample,
		Pickup:       o.Pickup,
		Delivery:     o.Delivery,
		Instructions: o.Instructions,
		CancelReason: o.CancelReason,
		CreatedAt:    o.CreatedAt,
		DeliveredAt:  o.DeliveredAt,
		CancelledAt:  o.CancelledAt,
	}
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.tracker.FetchOrder(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderResponse(o))
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req cancelOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: id,
		Reason:  req.Reason,
		Notes:   req.Notes,
		Current: h.tracker.CurrentOrder(id),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusCancelled})
}
