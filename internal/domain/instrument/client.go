package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QueuePayload is the order envelope the analyzer accepts on POST /queue.
// Field names follow the analyzer's own API.
type QueuePayload struct {
	ID           int           `json:"id"`
	PatientID    string        `json:"patientId"`
	TestCode     string        `json:"testCode"`
	SampleID     string        `json:"sampleId"`
	RequestID    string        `json:"requestId"`
	Priority     string        `json:"priority"`
	SpecimenType string        `json:"specimenType"`
	Metadata     QueueMetadata `json:"metadata"`
}

type QueueMetadata struct {
	WorkItemID   string `json:"workItemId"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// queueResponse covers both analyzer generations: older firmware returns
// a numeric id, newer ones a queueId string.
type queueResponse struct {
	ID      json.Number `json:"id"`
	QueueID string      `json:"queueId"`
}

// ExternalResult is the analyzer's answer on GET /results/{id}. Value is
// untyped because firmware returns numbers or strings depending on the
// assay.
type ExternalResult struct {
	Status  string `json:"status"`
	Value   any    `json:"value"`
	Unit    string `json:"unit"`
	Remarks string `json:"remarks"`
}

const ResultStatusCompleted = "completed"

// ValueString renders the analyzer value the way it arrived, trimming the
// trailing zeroes a float64 decode would otherwise add.
func (r *ExternalResult) ValueString() string {
	switch v := r.Value.(type) {
	case string:
		return v
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HealthStatus is what GET /status yields. An unreachable analyzer is
// reported as offline, never as an error.
type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client speaks the analyzer HTTP protocol. One client is shared across
// all instruments; per-instrument state lives in the Instrument record.
type Client struct {
	http          *http.Client
	sendTimeout   time.Duration
	healthTimeout time.Duration
}

func NewClient(sendTimeout, healthTimeout time.Duration) *Client {
	return &Client{
		http:          &http.Client{},
		sendTimeout:   sendTimeout,
		healthTimeout: healthTimeout,
	}
}

func (c *Client) newRequest(ctx context.Context, in *Instrument, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(in.Endpoint, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.APIKey != "" {
		req.Header.Set("X-API-Key", in.APIKey)
	}
	return req, nil
}

// Queue submits one order to the analyzer and returns the external id it
// assigned. A non-2xx reply wraps ErrRejected; transport failures and
// timeouts wrap ErrTransient.
func (c *Client) Queue(ctx context.Context, in *Instrument, payload *QueuePayload) (string, int, error) {
	if in.Endpoint == "" {
		return "", 0, ErrNoEndpoint
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, in, http.MethodPost, "/queue", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, raw)
	}

	var qr queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: decoding queue response: %v", ErrRejected, err)
	}
	externalID := qr.ID.String()
	if externalID == "" || externalID == "0" {
		externalID = qr.QueueID
	}
	if externalID == "" {
		return "", resp.StatusCode, fmt.Errorf("%w: queue response carries no id", ErrRejected)
	}
	return externalID, resp.StatusCode, nil
}

// FetchResult reads the analyzer's result record for an external id. The
// caller decides what to do with non-completed statuses.
func (c *Client) FetchResult(ctx context.Context, in *Instrument, externalID string) (*ExternalResult, error) {
	if in.Endpoint == "" {
		return nil, ErrNoEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, in, http.MethodGet, "/results/"+externalID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching result %s: status %d", externalID, resp.StatusCode)
	}
	var out ExternalResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", externalID, err)
	}
	return &out, nil
}

// Health probes the analyzer. It never returns an error: any failure to
// get a well-formed answer is reported as offline with the cause inline.
func (c *Client) Health(ctx context.Context, in *Instrument) HealthStatus {
	if in.Endpoint == "" {
		return HealthStatus{Status: "offline", Error: ErrNoEndpoint.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, in, http.MethodGet, "/status", nil)
	if err != nil {
		return HealthStatus{Status: "offline", Error: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{Status: "offline", Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{Status: "offline", Error: fmt.Sprintf("status endpoint returned %d", resp.StatusCode)}
	}
	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{Status: "offline", Error: err.Error()}
	}
	if hs.Status == "" {
		hs.Status = "offline"
	}
	return hs
}
