// README: Tracking handlers: timeline, map view, and the SSE update stream.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediroute/internal/modules/timeline"
	"mediroute/internal/modules/tracking"
	"mediroute/internal/types"
)

type TrackingHandler struct {
	tracker *tracking.Service
}

func NewTrackingHandler(tracker *tracking.Service) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

func (h *TrackingHandler) Timeline(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	steps, err := h.tracker.Timeline(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "steps": steps})
}

func (h *TrackingHandler) View(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	v, err := h.tracker.View(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

// streamEvent is the SSE payload pushed on every tracker update.
type streamEvent struct {
	Order    orderResp       `json:"order"`
	Timeline []timeline.Step `json:"timeline"`
	View     tracking.View   `json:"view"`
	Degraded bool            `json:"degraded"`
}

// Stream subscribes the connection to the order's poll loop and forwards
// updates as server-sent events until the client disconnects. Updates are
// buffered so the poll goroutine never blocks on a slow reader; a reader
// that falls a full buffer behind is dropped.
func (h *TrackingHandler) Stream(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}

	updates := make(chan tracking.Update, 16)
	handle, err := h.tracker.Subscribe(id, func(u tracking.Update) {
		select {
		case updates <- u:
		default:
		}
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	defer h.tracker.Unsubscribe(handle)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u := <-updates:
			ev := streamEvent{Timeline: u.Timeline, View: u.View, Degraded: u.Degraded}
			if u.Order != nil {
				ev.Order = orderResponse(u.Order)
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			c.SSEvent("update", string(payload))
			return true
		}
	})
}
