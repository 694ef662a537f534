package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/tidwall/gjson"
)

// httpClientTimeout is the timeout of the default HTTP client. The sync
// orchestrator applies its own, usually equal, per-attempt deadline.
const httpClientTimeout = 30 * time.Second

// HTTPUploader uploads events with PUT {baseURL}/events/{uid}.
type HTTPUploader struct {
	httpClient *http.Client
	baseURL    string
	token      string
	deviceID   string
}

// NewHTTPUploader creates an uploader. If httpClient is nil a client with
// a 30-second timeout is used. An empty token sends no Authorization
// header.
func NewHTTPUploader(baseURL, token, deviceID string, httpClient *http.Client) *HTTPUploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &HTTPUploader{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		deviceID:   deviceID,
	}
}

// Upload sends one event. Network errors, 408, 429 and 5xx are returned
// as TransientError. Other non-2xx statuses and a "rejected" status in
// the body wrap errors.ErrUploadRejected.
func (c *HTTPUploader) Upload(ctx context.Context, uid string, d models.EventDraft) (models.UploadResult, error) {
	body, err := json.Marshal(payload{UID: uid, Device: c.deviceID, Event: d})
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("marshalling event %s: %w", uid, err)
	}

	endpoint := c.baseURL + "/events/" + url.PathEscape(uid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.deviceID != "" {
		req.Header.Set(DeviceHeader, c.deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.UploadResult{}, &TransientError{Err: fmt.Errorf("uploading %s: %w", uid, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.UploadResult{}, &TransientError{Err: fmt.Errorf("reading response for %s: %w", uid, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.UploadResult{}, statusError(uid, resp.StatusCode, respBody)
	}

	return interpret(respBody)
}

func statusError(uid string, code int, body []byte) error {
	detail := gjson.GetBytes(body, "error").String()
	if detail == "" {
		detail = sanitize(body)
	}

	if isTransientStatus(code) {
		return &TransientError{Err: fmt.Errorf("uploading %s: status %d: %s", uid, code, detail)}
	}

	return fmt.Errorf("uploading %s: status %d: %w: %s", uid, code, apperrors.ErrUploadRejected, detail)
}
