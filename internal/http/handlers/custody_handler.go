// README: Custody handlers: QR scan recording and token retrieval.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediroute/internal/modules/custody"
	"mediroute/internal/modules/tracking"
	"mediroute/internal/types"
)

// TokenSource fetches the QR token pair the backend issued for an order.
type TokenSource interface {
	FetchQRTokens(ctx context.Context, id types.ID) (custody.Tokens, error)
}

type CustodyHandler struct {
	tracker *tracking.Service
	tokens  TokenSource
}

func NewCustodyHandler(tracker *tracking.Service, tokens TokenSource) *CustodyHandler {
	return &CustodyHandler{tracker: tracker, tokens: tokens}
}

type recordScanReq struct {
	ScanType  string `json:"scan_type"`
	ScannedAt string `json:"scanned_at"` // RFC3339; defaults to now
}

func (h *CustodyHandler) RecordScan(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req recordScanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	scanType := custody.ScanType(req.ScanType)
	if scanType != custody.ScanPickup && scanType != custody.ScanDelivery {
		writeError(c, http.StatusBadRequest, "scan_type must be pickup or delivery")
		return
	}
	at := time.Now()
	if req.ScannedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScannedAt)
		if err != nil {
			writeError(c, http.StatusBadRequest, "scanned_at must be RFC3339")
			return
		}
		at = parsed
	}
	performedBy := types.ID(c.GetString("uid"))

	tr, err := h.tracker.RecordScan(c.Request.Context(), id, scanType, performedBy, at)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	resp := gin.H{"accepted": true}
	if tr != nil {
		resp["status"] = tr.To
	} else {
		// Scan stood but the transition is pending status propagation.
		resp["transition_pending"] = true
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *CustodyHandler) Tokens(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	tokens, err := h.tokens.FetchQRTokens(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tokens)
}
