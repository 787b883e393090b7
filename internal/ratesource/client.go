package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("goaltracker.ratesource")

const DefaultBaseURL = "https://v6.exchangerate-api.com/v6"

// maxBody bounds how much of a provider response is read.
const maxBody = 1 << 20

// Client fetches the USD->INR rate from exchangerate-api.com (v6).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != "undefined"
}

type latestResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

func (c *Client) FetchUSDRate(ctx context.Context) (float64, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}
	url := fmt.Sprintf("%s/%s/latest/USD", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Annotate(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the key; keep it out of the message.
		return 0, errors.Errorf("request failed: %v", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return 0, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		logger.Debugf("decode latest rates: %v", err)
		return 0, ErrMalformedPayload
	}
	if body.Result == "error" {
		return 0, &APIError{Type: body.ErrorType}
	}
	inr, ok := body.ConversionRates["INR"]
	if !ok || math.IsNaN(inr) || math.IsInf(inr, 0) || inr <= 0 {
		return 0, ErrMalformedPayload
	}
	return inr, nil
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
