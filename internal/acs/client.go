// Package acs is a minimal Azure Communication Services Call Automation
// client: outbound call creation, play-and-recognize, and hang-up, plus the
// cloud-event payloads the service posts back to the callback URL.
package acs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAPIVersion = "2023-10-15"

var ErrInvalidConnectionString = errors.New("invalid ACS connection string")

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("acs: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("acs: %d: %s", e.StatusCode, e.Message)
}

// Client talks to the Call Automation REST API using HMAC request signing.
type Client struct {
	endpoint   *url.URL
	accessKey  []byte
	apiVersion string
	httpClient *http.Client
	now        func() time.Time
}

// Config configures the client.
type Config struct {
	ConnectionString string
	APIVersion       string
	HTTPClient       *http.Client
}

// ParseConnectionString splits "endpoint=https://...;accesskey=..." into its
// endpoint URL and decoded access key.
func ParseConnectionString(cs string) (*url.URL, []byte, error) {
	var endpoint, key string
	for _, part := range strings.Split(cs, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = v
		case "accesskey":
			key = v
		}
	}
	if endpoint == "" || key == "" {
		return nil, nil, fmt.Errorf("%w: endpoint and accesskey are required", ErrInvalidConnectionString)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: bad endpoint %q", ErrInvalidConnectionString, endpoint)
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: accesskey is not base64", ErrInvalidConnectionString)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, decoded, nil
}

// New creates a new Call Automation client.
func New(cfg Config) (*Client, error) {
	endpoint, key, err := ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:   endpoint,
		accessKey:  key,
		apiVersion: apiVersion,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// CreateCallParams are parameters for placing an outbound PSTN call.
type CreateCallParams struct {
	Target                    string // E.164 number to dial
	Source                    string // E.164 number owned by the ACS resource
	CallbackURL               string
	CognitiveServicesEndpoint string
	OperationContext          string
}

// CallConnection is the acknowledgement returned by CreateCall.
type CallConnection struct {
	CallConnectionID    string `json:"callConnectionId"`
	ServerCallID        string `json:"serverCallId"`
	CallConnectionState string `json:"callConnectionState"`
	CallbackURI         string `json:"callbackUri"`
	CorrelationID       string `json:"correlationId"`
}

type createCallRequest struct {
	Targets                 []Identifier             `json:"targets"`
	SourceCallerIDNumber    *PhoneNumber             `json:"sourceCallerIdNumber,omitempty"`
	CallbackURI             string                   `json:"callbackUri"`
	OperationContext        string                   `json:"operationContext,omitempty"`
	CallIntelligenceOptions *callIntelligenceOptions `json:"callIntelligenceOptions,omitempty"`
}

type callIntelligenceOptions struct {
	CognitiveServicesEndpoint string `json:"cognitiveServicesEndpoint"`
}

// CreateCall requests an outbound call. It returns once the service has
// accepted the request; connection is reported later via CallConnected.
func (c *Client) CreateCall(ctx context.Context, params CreateCallParams) (*CallConnection, error) {
	body := createCallRequest{
		Targets:              []Identifier{PhoneIdentifier(params.Target)},
		SourceCallerIDNumber: &PhoneNumber{Value: params.Source},
		CallbackURI:          params.CallbackURL,
		OperationContext:     params.OperationContext,
	}
	if params.CognitiveServicesEndpoint != "" {
		body.CallIntelligenceOptions = &callIntelligenceOptions{CognitiveServicesEndpoint: params.CognitiveServicesEndpoint}
	}

	var conn CallConnection
	if err := c.do(ctx, http.MethodPost, "/calling/callConnections", body, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// RecognizeParams describes one play-prompt-then-recognize-speech request.
type RecognizeParams struct {
	Target            string // phone number of the participant to listen to
	Prompt            string // text synthesized and played before listening
	VoiceName         string
	EndSilenceTimeout time.Duration
	OperationContext  string
}

type recognizeRequest struct {
	RecognizeInputType string           `json:"recognizeInputType"`
	PlayPrompt         *playSource      `json:"playPrompt,omitempty"`
	RecognizeOptions   recognizeOptions `json:"recognizeOptions"`
	OperationContext   string           `json:"operationContext,omitempty"`
}

type playSource struct {
	Kind string      `json:"kind"`
	Text *textSource `json:"text"`
}

type textSource struct {
	Text      string `json:"text"`
	VoiceName string `json:"voiceName,omitempty"`
}

type recognizeOptions struct {
	InterruptPrompt   bool           `json:"interruptPrompt"`
	TargetParticipant Identifier     `json:"targetParticipant"`
	SpeechOptions     *speechOptions `json:"speechOptions,omitempty"`
}

type speechOptions struct {
	EndSilenceTimeoutInMs int64 `json:"endSilenceTimeoutInMs"`
}

// StartRecognizing plays the prompt to the participant and arms speech
// recognition. The result arrives as a RecognizeCompleted/RecognizeFailed event.
func (c *Client) StartRecognizing(ctx context.Context, callConnectionID string, params RecognizeParams) error {
	body := recognizeRequest{
		RecognizeInputType: "speech",
		RecognizeOptions: recognizeOptions{
			TargetParticipant: PhoneIdentifier(params.Target),
		},
		OperationContext: params.OperationContext,
	}
	if params.Prompt != "" {
		body.PlayPrompt = &playSource{
			Kind: "text",
			Text: &textSource{Text: params.Prompt, VoiceName: params.VoiceName},
		}
	}
	if params.EndSilenceTimeout > 0 {
		body.RecognizeOptions.SpeechOptions = &speechOptions{EndSilenceTimeoutInMs: params.EndSilenceTimeout.Milliseconds()}
	}
	path := "/calling/callConnections/" + url.PathEscape(callConnectionID) + ":recognize"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// HangUp terminates the call for every participant.
func (c *Client) HangUp(ctx context.Context, callConnectionID string) error {
	path := "/calling/callConnections/" + url.PathEscape(callConnectionID) + ":terminate"
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	u := *c.endpoint
	u.Path = c.endpoint.Path + path
	u.RawQuery = url.Values{"api-version": {c.apiVersion}}.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.sign(req, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// sign adds the HMAC-SHA256 authorization headers expected by ACS.
func (c *Client) sign(req *http.Request, payload []byte) {
	sum := sha256.Sum256(payload)
	contentHash := base64.StdEncoding.EncodeToString(sum[:])
	date := c.now().UTC().Format(http.TimeFormat)

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)

	stringToSign := req.Method + "\n" + req.URL.RequestURI() + "\n" + date + ";" + req.URL.Host + ";" + contentHash
	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
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
