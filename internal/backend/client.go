// README: HTTP adapter for the courier backend service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"mediroute/internal/modules/custody"
	"mediroute/internal/modules/location"
	"mediroute/internal/modules/order"
	"mediroute/internal/types"
)

var ErrNotFound = errors.New("order not found in backend")

// RateLimitedError carries the backend's Retry-After hint; the poller uses
// it as a floor for that tick's backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Snapshot is a point-in-time read of an order from the backend: status,
// timestamp ledger, rider, location, and custody events.
type Snapshot struct {
	OrderID       types.ID
	HospitalID    types.ID
	Status        order.Status
	Timestamps    map[order.Status]time.Time
	Rider         *order.Rider
	Sample        order.Sample
	Pickup        types.Point
	Delivery      types.Point
	RiderLocation *location.Sample
	CustodyEvents []custody.ScanEvent
	Instructions  string
	CancelReason  *string
	CreatedAt     time.Time
}

// Client calls the backend's REST surface. It owns no state beyond the
// base URL and transport.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("backend url must be absolute")
	}
	return &Client{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// snapshotResponse mirrors the backend's JSON payload.
type snapshotResponse struct {
	OrderID    string            `json:"order_id"`
	HospitalID string            `json:"hospital_id"`
	Status     string            `json:"status"`
	Timestamps map[string]string `json:"timestamps"`
	Rider      *struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Vehicle string `json:"vehicle"`
	} `json:"rider,omitempty"`
	Sample struct {
		Type     string `json:"type"`
		Quantity int    `json:"quantity"`
		Urgency  string `json:"urgency"`
	} `json:"sample"`
	Pickup        types.Point `json:"pickup"`
	Delivery      types.Point `json:"delivery"`
	RiderLocation *struct {
		RiderID    string      `json:"rider_id"`
		Position   types.Point `json:"position"`
		RecordedAt time.Time   `json:"recorded_at"`
	} `json:"rider_location,omitempty"`
	CustodyEvents []struct {
		ScanType    string    `json:"scan_type"`
		PerformedBy string    `json:"performed_by"`
		RecordedAt  time.Time `json:"recorded_at"`
		Success     bool      `json:"success"`
	} `json:"custody_events"`
	Instructions string  `json:"instructions"`
	CancelReason *string `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// timestampSteps maps wire ledger keys to statuses.
var timestampSteps = map[string]order.Status{
	"assigned_at":         order.StatusAssigned,
	"pickup_started_at":   order.StatusPickupStarted,
	"picked_up_at":        order.StatusPickedUp,
	"delivery_started_at": order.StatusDeliveryStarted,
	"delivered_at":        order.StatusDelivered,
	"cancelled_at":        order.StatusCancelled,
}

// FetchSnapshot reads the current order snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, orderID types.ID) (*Snapshot, error) {
	var data snapshotResponse
	if err := c.getJSON(ctx, "/api/orders/"+string(orderID)+"/snapshot", &data); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		OrderID:      types.ID(data.OrderID),
		HospitalID:   types.ID(data.HospitalID),
		Status:       order.Status(data.Status),
		Timestamps:   map[order.Status]time.Time{},
		Pickup:       data.Pickup,
		Delivery:     data.Delivery,
		Instructions: data.Instructions,
		CancelReason: data.CancelReason,
		CreatedAt:    data.CreatedAt,
		Sample: order.Sample{
			Type:     data.Sample.Type,
			Quantity: data.Sample.Quantity,
			Urgency:  data.Sample.Urgency,
		},
	}
	for key, raw := range data.Timestamps {
		status, ok := timestampSteps[key]
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.logger.Warn("skipping malformed ledger timestamp",
				slog.String("order_id", data.OrderID), slog.String("step", key))
			continue
		}
		snap.Timestamps[status] = at
	}
	if data.Rider != nil {
		snap.Rider = &order.Rider{
			ID:      types.ID(data.Rider.ID),
			Name:    data.Rider.Name,
			Phone:   data.Rider.Phone,
			Vehicle: data.Rider.Vehicle,
		}
	}
	if data.RiderLocation != nil {
		snap.RiderLocation = &location.Sample{
			OrderID:    snap.OrderID,
			RiderID:    types.ID(data.RiderLocation.RiderID),
			Position:   data.RiderLocation.Position,
			RecordedAt: data.RiderLocation.RecordedAt,
		}
	}
	for _, e := range data.CustodyEvents {
		snap.CustodyEvents = append(snap.CustodyEvents, custody.ScanEvent{
			ScanType:    custody.ScanType(e.ScanType),
			OrderID:     snap.OrderID,
			PerformedBy: types.ID(e.PerformedBy),
			RecordedAt:  e.RecordedAt,
			Success:     e.Success,
		})
	}
	return snap, nil
}

// FetchRiderLocation reads only the rider position, the cheap call used on
// the location-only cadence.
func (c *Client) FetchRiderLocation(ctx context.Context, orderID types.ID) (*location.Sample, error) {
	var data struct {
		RiderID    string      `json:"rider_id"`
		Position   types.Point `json:"position"`
		RecordedAt time.Time   `json:"recorded_at"`
	}
	if err := c.getJSON(ctx, "/api/orders/"+string(orderID)+"/location", &data); err != nil {
		return nil, err
	}
	return &location.Sample{
		OrderID:    orderID,
		RiderID:    types.ID(data.RiderID),
		Position:   data.Position,
		RecordedAt: data.RecordedAt,
	}, nil
}

// CreateOrder registers a delivery order and returns its id.
func (c *Client) CreateOrder(ctx context.Context, cmd order.CreateCommand) (types.ID, error) {
	body := map[string]any{
		"hospital_id":  string(cmd.HospitalID),
		"sample":       cmd.Sample,
		"pickup":       cmd.Pickup,
		"delivery":     cmd.Delivery,
		"instructions": cmd.Instructions,
	}
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := c.postJSON(ctx, "/api/orders", body, &resp); err != nil {
		return "", err
	}
	return types.ID(resp.OrderID), nil
}

// CancelOrder asks the backend to cancel; the backend is the authority on
// whether the order's current state still permits it.
func (c *Client) CancelOrder(ctx context.Context, id types.ID, reason, notes string) error {
	body := map[string]any{"reason": reason, "notes": notes}
	return c.postJSON(ctx, "/api/orders/"+string(id)+"/cancel", body, nil)
}

// FetchQRTokens reads the opaque pickup/delivery QR pair, available once the
// order is assigned.
func (c *Client) FetchQRTokens(ctx context.Context, id types.ID) (custody.Tokens, error) {
	var tokens custody.Tokens
	if err := c.getJSON(ctx, "/api/orders/"+string(id)+"/qr", &tokens); err != nil {
		return custody.Tokens{}, err
	}
	return tokens, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) resolve(p string) string {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, p)
	return endpoint.String()
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("backend request failed",
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return fmt.Errorf("backend error: %s", resp.Status)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 5 * time.Second
}
