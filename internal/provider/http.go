package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/vendsight/vendsight/internal/hierarchy"
)

// HTTPClient talks JSON to a telemetry gateway that fronts the vendor
// portal. The gateway owns login, scraping and the vendor wire format; this
// client only consumes its normalised JSON endpoints.
type HTTPClient struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewHTTPClient builds a gateway client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:   baseURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

type actorRecordJSON struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ActiveNow bool   `json:"active_now"`
}

type salesRecordJSON struct {
	MachineID    string  `json:"machine_id"`
	TotalCount   int64   `json:"total_count"`
	TotalAmount  float64 `json:"total_amount"`
	DTUSerial    string  `json:"dtu_serial,omitempty"`
	VPOSSerial   string  `json:"vpos_serial,omitempty"`
	SIMSerial    string  `json:"sim_serial,omitempty"`
	RSSI         *int    `json:"rssi,omitempty"`
	DTUFirmware  string  `json:"dtu_fw,omitempty"`
	VPOSFirmware string  `json:"vpos_fw,omitempty"`
}

type productRecordJSON struct {
	Selection string  `json:"selection"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Mapped    bool    `json:"mapped"`
}

type historyEventJSON struct {
	At         time.Time `json:"at"`
	Transition string    `json:"transition"`
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
		}
		return fmt.Errorf("provider: get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status %d", ErrTransient, path, resp.StatusCode)
	default:
		return fmt.Errorf("provider: get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("provider: decode %s: %w", path, err)
	}
	return nil
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// FetchActorList implements Fetcher.
func (c *HTTPClient) FetchActorList(ctx context.Context) ([]ActorRecord, error) {
	var rows []actorRecordJSON
	if err := c.get(ctx, "/v1/actors", nil, &rows); err != nil {
		return nil, err
	}
	records := make([]ActorRecord, 0, len(rows))
	for _, row := range rows {
		kind := hierarchy.KindMachine
		if row.Kind == "operator" {
			kind = hierarchy.KindOperator
		}
		records = append(records, ActorRecord{
			ID:        row.ID,
			ParentID:  row.ParentID,
			Name:      hierarchy.CleanName(row.Name),
			Kind:      kind,
			ActiveNow: row.ActiveNow,
		})
	}
	return records, nil
}

// FetchSales implements Fetcher.
func (c *HTTPClient) FetchSales(ctx context.Context, actorID string, method PaymentMethod, start, end time.Time) ([]SalesRecord, error) {
	query := url.Values{
		"actor_id": {actorID},
		"method":   {string(method)},
		"start":    {start.Format("2006-01-02")},
		"end":      {end.Format("2006-01-02")},
	}
	var rows []salesRecordJSON
	if err := c.get(ctx, "/v1/sales", query, &rows); err != nil {
		return nil, err
	}
	records := make([]SalesRecord, 0, len(rows))
	for _, row := range rows {
		rec := SalesRecord{MachineID: row.MachineID, Count: row.TotalCount, Amount: row.TotalAmount}
		if row.DTUSerial != "" || row.VPOSSerial != "" || row.SIMSerial != "" || row.RSSI != nil {
			rec.Device = &hierarchy.DeviceMeta{
				DTUSerial:    row.DTUSerial,
				VPOSSerial:   row.VPOSSerial,
				SIMSerial:    row.SIMSerial,
				RSSI:         row.RSSI,
				DTUFirmware:  row.DTUFirmware,
				VPOSFirmware: row.VPOSFirmware,
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchProductMap implements ProductFetcher.
func (c *HTTPClient) FetchProductMap(ctx context.Context, machineID string) ([]ProductRecord, error) {
	query := url.Values{"machine_id": {machineID}}
	var rows []productRecordJSON
	if err := c.get(ctx, "/v1/products", query, &rows); err != nil {
		return nil, err
	}
	records := make([]ProductRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ProductRecord{
			Selection: row.Selection,
			Name:      row.Name,
			Price:     row.Price,
			Mapped:    row.Mapped,
		})
	}
	return records, nil
}

// FetchHistory implements HistoryFetcher.
func (c *HTTPClient) FetchHistory(ctx context.Context, machineID string) ([]HistoryEvent, error) {
	query := url.Values{"machine_id": {machineID}}
	var rows []historyEventJSON
	if err := c.get(ctx, "/v1/history", query, &rows); err != nil {
		return nil, err
	}
	events := make([]HistoryEvent, 0, len(rows))
	for _, row := range rows {
		transition := TransitionDeactivation
		if row.Transition == "activation" {
			transition = TransitionActivation
		}
		events = append(events, HistoryEvent{At: row.At, Transition: transition})
	}
	return events, nil
}
