// Package httpapi talks to the collector endpoint: init handshake, event
// batches and the internal SDK-error side channel. Bodies are JSON,
// optionally gzip-compressed, and signed with an HMAC-SHA256 of the exact
// bytes sent, keyed by the game secret.
package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/validate"
)

const (
	// DefaultBaseURL is the production collector.
	DefaultBaseURL = "https://api.gameanalytics.com/v2"

	initPath   = "init"
	eventsPath = "events"

	// maxErrorCount caps the per-type SDK-error reports for one process run,
	// preventing amplification loops.
	maxErrorCount = 10
)

// Client is the collector transport. Safe for concurrent use; the dispatcher
// calls it from the worker goroutine and SendSdkError detaches its own.
type Client struct {
	log     *logging.Logger
	http    *http.Client
	baseURL string
	useGzip bool

	gameKey   string
	secretKey string

	mu        sync.Mutex
	errCounts map[ErrorType]int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-production collector (tests,
// proxies).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithGzip toggles request-body compression. On by default.
func WithGzip(enabled bool) Option {
	return func(c *Client) { c.useGzip = enabled }
}

// WithHTTPClient substitutes the underlying http.Client (socket timeouts are
// its concern, not this layer's).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a collector client for the given game key pair.
func New(gameKey, secretKey string, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		log:       log,
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   DefaultBaseURL,
		useGzip:   true,
		gameKey:   gameKey,
		secretKey: secretKey,
		errCounts: make(map[ErrorType]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestInit performs the init handshake and returns the cleaned response
// document on Ok.
func (c *Client) RequestInit(annotations map[string]any) (Response, map[string]any) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, initPath)
	c.log.Debugf("Sending 'init' URL: %s", url)

	body, err := json.Marshal(annotations)
	if err != nil {
		return JSONEncodeFailed, nil
	}

	status, respBody := c.post(url, body)
	resp := ClassifyStatus(status, len(respBody))

	if resp != Ok && resp != BadRequest {
		c.log.Debugf("Failed Init Call. URL: %s, response: %s", url, resp)
		return resp, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(respBody, &doc); err != nil {
		c.log.Debug("Failed Init Call. Json decoding failed")
		return JSONDecodeFailed, nil
	}

	if resp == BadRequest {
		c.log.Debugf("Failed Init Call. Bad request. Response: %v", doc)
		return resp, nil
	}

	cleaned, ok := validate.CleanInitResponse(doc)
	if !ok {
		return BadResponse, nil
	}
	return Ok, cleaned
}

// SendEvents posts one batch of serialized events and returns the decoded
// response body (the collector reports per-event validation failures there).
func (c *Client) SendEvents(events []json.RawMessage) (Response, []any) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, eventsPath)
	c.log.Debugf("Sending 'events' URL: %s", url)

	body, err := json.Marshal(events)
	if err != nil {
		c.log.Debug("SendEvents JSON encoding failed")
		return JSONEncodeFailed, nil
	}

	status, respBody := c.post(url, body)
	resp := ClassifyStatus(status, len(respBody))

	if resp != Ok && resp != BadRequest {
		c.log.Debugf("Failed Events Call. URL: %s, response: %s", url, resp)
		return resp, nil
	}

	var doc []any
	if err := json.Unmarshal(respBody, &doc); err != nil {
		// The collector answers arrays; some error paths answer objects.
		// A definite answer with an undecodable body is still terminal.
		var alt any
		if err2 := json.Unmarshal(respBody, &alt); err2 != nil {
			return JSONDecodeFailed, nil
		}
	}

	if resp == BadRequest {
		c.log.Debugf("Failed Events Call. Bad request. Response: %v", doc)
	}
	return resp, doc
}

// SendSdkError reports one internal SDK error (e.g. a validation rejection)
// on a detached goroutine so the main pipeline's ordering is never
// perturbed. Reports are capped per type per process run.
func (c *Client) SendSdkError(annotations map[string]any, t ErrorType) {
	if !validate.Keys(c.gameKey, c.secretKey) {
		return
	}
	if t.String() == "" {
		c.log.Warning("SendSdkError: type was unsupported value.")
		return
	}

	c.mu.Lock()
	capped := c.errCounts[t] >= maxErrorCount
	c.mu.Unlock()
	if capped {
		return
	}

	payload := make(map[string]any, len(annotations)+1)
	for k, v := range annotations {
		payload[k] = v
	}
	payload["type"] = t.String()

	body, err := json.Marshal([]map[string]any{payload})
	if err != nil {
		c.log.Warning("SendSdkError: JSON encoding failed.")
		return
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.gameKey, eventsPath)

	go func() {
		status, respBody := c.post(url, body)
		if ClassifyStatus(status, len(respBody)) != Ok {
			c.log.Debugf("SDK error report failed. Status code: %d", status)
			return
		}
		c.mu.Lock()
		c.errCounts[t]++
		c.mu.Unlock()
	}()
}

// post sends one signed request and returns (status, body). A status of 0
// with an empty body means the request never completed.
func (c *Client) post(url string, payload []byte) (int, []byte) {
	data := payload
	compressed := false
	if c.useGzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err == nil && zw.Close() == nil {
			data = buf.Bytes()
			compressed = true
			c.log.Debugf("Gzip stats. Size: %d, Compressed: %d", len(payload), len(data))
		}
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Authorization", Authorization(c.secretKey, data))
	req.Header.Set("Content-Type", "application/json")
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugf("Request failed. Might be no connection: %v", err)
		return 0, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, body
}

// Authorization computes the collector's auth header: base64 of the
// HMAC-SHA256 of the exact body bytes, keyed by the game secret.
func Authorization(secretKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
