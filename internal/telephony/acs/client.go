// Package acs implements telephony.Client against the Azure Communication
// Services Call Automation REST API.
package acs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/announcement-call/internal/telephony"
)

// APIVersion is the Call Automation API version the client speaks.
const APIVersion = "2023-10-15"

var _ telephony.Client = (*Client)(nil)

// Client is a Call Automation API client.
type Client struct {
	endpoint   *url.URL
	accessKey  []byte
	httpClient *http.Client
	now        func() time.Time
}

// Config configures the client.
type Config struct {
	ConnectionString string
	HTTPClient       *http.Client
	Timeout          time.Duration
}

// New creates a new client from a resource connection string.
func New(cfg Config) (*Client, error) {
	endpoint, key, err := ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:   endpoint,
		accessKey:  key,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// ParseConnectionString splits "endpoint=...;accesskey=..." into the
// resource endpoint and the decoded access key.
func ParseConnectionString(cs string) (*url.URL, []byte, error) {
	var rawEndpoint, rawKey string
	for _, part := range strings.Split(cs, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(name) {
		case "endpoint":
			rawEndpoint = value
		case "accesskey":
			rawKey = value
		}
	}
	if rawEndpoint == "" || rawKey == "" {
		return nil, nil, fmt.Errorf("acs: connection string must contain endpoint and accesskey")
	}

	endpoint, err := url.Parse(rawEndpoint)
	if err != nil || endpoint.Host == "" {
		return nil, nil, fmt.Errorf("acs: invalid endpoint %q", rawEndpoint)
	}
	endpoint.Path = strings.TrimRight(endpoint.Path, "/")

	key, err := base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, nil, fmt.Errorf("acs: decode access key: %w", err)
	}
	return endpoint, key, nil
}

type phoneNumber struct {
	Value string `json:"value"`
}

type identifier struct {
	Kind        string       `json:"kind,omitempty"`
	RawID       string       `json:"rawId,omitempty"`
	PhoneNumber *phoneNumber `json:"phoneNumber,omitempty"`
}

type createCallRequest struct {
	Targets              []identifier `json:"targets"`
	SourceCallerIDNumber *phoneNumber `json:"sourceCallerIdNumber,omitempty"`
	CallbackURI          string       `json:"callbackUri"`
}

type callConnectionProperties struct {
	CallConnectionID    string       `json:"callConnectionId"`
	CallConnectionState string       `json:"callConnectionState"`
	Source              *identifier  `json:"source,omitempty"`
	Targets             []identifier `json:"targets,omitempty"`
}

type fileSource struct {
	URI string `json:"uri"`
}

type playSource struct {
	Kind string      `json:"kind"`
	File *fileSource `json:"file,omitempty"`
}

type playRequest struct {
	PlaySources []playSource `json:"playSources"`
	PlayTo      []identifier `json:"playTo"`
}

// CreateCall places an outbound PSTN call.
func (c *Client) CreateCall(ctx context.Context, params telephony.CreateCallParams) (*telephony.CallConnection, error) {
	body := createCallRequest{
		Targets: []identifier{{
			Kind:        "phoneNumber",
			RawID:       "4:" + params.To,
			PhoneNumber: &phoneNumber{Value: params.To},
		}},
		SourceCallerIDNumber: &phoneNumber{Value: params.From},
		CallbackURI:          params.CallbackURL,
	}

	headers := http.Header{}
	headers.Set("Repeatability-Request-ID", uuid.NewString())
	headers.Set("Repeatability-First-Sent", c.now().UTC().Format(http.TimeFormat))

	var props callConnectionProperties
	if err := c.send(ctx, http.MethodPost, "/calling/callConnections", body, headers, &props); err != nil {
		return nil, err
	}
	return toConnection(props, params.From, params.To), nil
}

// GetCallConnectionProperties fetches the current state of a call.
func (c *Client) GetCallConnectionProperties(ctx context.Context, callConnectionID string) (*telephony.CallConnection, error) {
	var props callConnectionProperties
	if err := c.send(ctx, http.MethodGet, "/calling/callConnections/"+url.PathEscape(callConnectionID), nil, nil, &props); err != nil {
		return nil, err
	}
	return toConnection(props, "", ""), nil
}

// PlayMedia plays a file source to all participants.
func (c *Client) PlayMedia(ctx context.Context, callConnectionID, audioURL string) error {
	body := playRequest{
		PlaySources: []playSource{{Kind: "file", File: &fileSource{URI: audioURL}}},
		PlayTo:      []identifier{},
	}
	return c.send(ctx, http.MethodPost, "/calling/callConnections/"+url.PathEscape(callConnectionID)+":play", body, nil, nil)
}

// HangUp terminates the call for everyone.
func (c *Client) HangUp(ctx context.Context, callConnectionID string) error {
	return c.send(ctx, http.MethodPost, "/calling/callConnections/"+url.PathEscape(callConnectionID)+":terminate", nil, nil, nil)
}

// Error represents a Call Automation API error.
type Error struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("acs error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("acs error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) send(ctx context.Context, method, path string, payload any, headers http.Header, result any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("acs: marshal request: %w", err)
		}
	}

	u := *c.endpoint
	u.Path = c.endpoint.Path + path
	u.RawQuery = url.Values{"api-version": {APIVersion}}.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("acs: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.sign(req, body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("acs: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("acs: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *Error `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("acs: parse response: %w", err)
		}
	}
	return nil
}

// sign applies HMAC-SHA256 request authentication.
func (c *Client) sign(req *http.Request, body []byte) {
	date := c.now().UTC().Format(http.TimeFormat)
	sum := sha256.Sum256(body)
	contentHash := base64.StdEncoding.EncodeToString(sum[:])

	stringToSign := strings.Join([]string{
		req.Method,
		req.URL.RequestURI(),
		date + ";" + req.URL.Host + ";" + contentHash,
	}, "\n")

	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}

func toConnection(props callConnectionProperties, from, to string) *telephony.CallConnection {
	conn := &telephony.CallConnection{
		ID:    props.CallConnectionID,
		State: props.CallConnectionState,
		From:  from,
		To:    to,
	}
	if props.Source != nil && props.Source.PhoneNumber != nil {
		conn.From = props.Source.PhoneNumber.Value
	}
	if len(props.Targets) > 0 && props.Targets[0].PhoneNumber != nil {
		conn.To = props.Targets[0].PhoneNumber.Value
	}
	return conn
}
