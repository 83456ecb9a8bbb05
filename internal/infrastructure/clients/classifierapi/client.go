package classifierapi

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

// Client talks to the acuity prediction service
type Client interface {
	Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error)
	Health(ctx context.Context) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

type Vitals struct {
	SBP  float64 `json:"sbp"`
	DBP  float64 `json:"dbp"`
	Temp float64 `json:"temp"`
	HR   float64 `json:"hr"`
	RR   float64 `json:"rr"`
	O2   float64 `json:"o2"`
}

type PredictRequest struct {
	Complaint string `json:"complaint"`
	Vitals    Vitals `json:"vitals"`
}

// PredictResponse carries the predicted label and, when the model supports
// it, the probability of each label
type PredictResponse struct {
	Category      string             `json:"category"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("classifier api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("classifier api returned status %d: %s", e.StatusCode, e.Body)
}

func NewClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction request: %w", err)
	}

	out := &PredictResponse{}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.doJSON(ctx, http.MethodGet, c.baseURL+"/health", nil, &out)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
