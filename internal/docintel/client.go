// Package docintel extracts text from documents with the Azure Document
// Intelligence "prebuilt-read" model.
package docintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPIVersion = "2023-07-31"
	DefaultModel      = "prebuilt-read"
)

var ErrNoOperationLocation = errors.New("analyze response missing Operation-Location")

// APIError is returned for non-2xx responses and failed analyze operations.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("document analysis: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("document analysis: %d: %s", e.StatusCode, e.Message)
}

// Client is a Document Intelligence REST client.
type Client struct {
	endpoint     string
	key          string
	model        string
	apiVersion   string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Config configures the client.
type Config struct {
	Endpoint     string
	Key          string
	Model        string
	APIVersion   string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

// New creates a new Document Intelligence client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("document analysis endpoint is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("document analysis key is required")
	}
	c := &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		key:          cfg.Key,
		model:        cfg.Model,
		apiVersion:   cfg.APIVersion,
		httpClient:   cfg.HTTPClient,
		pollInterval: cfg.PollInterval,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	return c, nil
}

type analyzeOperation struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Content string `json:"content"`
	} `json:"analyzeResult,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnalyzeText submits the document and waits for the extracted text.
func (c *Client) AnalyzeText(ctx context.Context, document io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", c.endpoint, c.model, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, document)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit document: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", parseAPIError(resp.StatusCode, body)
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return "", ErrNoOperationLocation
	}

	wait := retryAfter(resp.Header, c.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}

		op, header, err := c.poll(ctx, location)
		if err != nil {
			return "", err
		}
		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return "", nil
			}
			return op.AnalyzeResult.Content, nil
		case "failed", "canceled":
			apiErr := &APIError{StatusCode: http.StatusOK, Message: "analyze operation " + op.Status}
			if op.Error != nil {
				apiErr.Code = op.Error.Code
				apiErr.Message = op.Error.Message
			}
			return "", apiErr
		}
		wait = retryAfter(header, c.pollInterval)
	}
}

func (c *Client) poll(ctx context.Context, location string) (analyzeOperation, http.Header, error) {
	var op analyzeOperation
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return op, nil, fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return op, nil, fmt.Errorf("poll analyze result: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return op, nil, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return op, nil, parseAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &op); err != nil {
		return op, nil, fmt.Errorf("decode analyze result: %w", err)
	}
	return op, resp.Header, nil
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func parseAPIError(status int, body []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
