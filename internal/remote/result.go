// Package remote implements event uploaders for the remote inspection
// service over HTTP and WebSocket. Both speak the same JSON payload and
// interpret responses the same way.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/tidwall/gjson"
)

const (
	// maxResponseBytes caps response reads. Upload acknowledgements are
	// small JSON documents.
	maxResponseBytes = 64 * 1024

	// DeviceHeader carries the uploading device's id.
	DeviceHeader = "X-Device-ID"
)

// TransientError wraps errors that are worth retrying: network failures,
// timeouts, 429 and 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// payload is the upload body.
type payload struct {
	UID    string            `json:"uid"`
	Device string            `json:"device,omitempty"`
	Event  models.EventDraft `json:"event"`
}

// interpret turns a response document into an upload result. A
// "rejected" status is permanent; any other non-ok status is reported as
// an unsuccessful result so the caller retries.
func interpret(body []byte) (models.UploadResult, error) {
	if len(body) == 0 {
		return models.UploadResult{Success: true}, nil
	}

	if !gjson.ValidBytes(body) {
		return models.UploadResult{}, &TransientError{
			Err: fmt.Errorf("malformed response: %s", sanitize(body)),
		}
	}

	doc := gjson.ParseBytes(body)
	status := strings.ToLower(doc.Get("status").String())
	msg := doc.Get("message").String()

	if msg == "" {
		msg = doc.Get("error").String()
	}

	switch status {
	case "", "ok", "stored", "accepted":
		return models.UploadResult{Success: true, Message: msg}, nil
	case "rejected":
		if msg == "" {
			msg = "no reason given"
		}

		return models.UploadResult{}, fmt.Errorf("%w: %s", apperrors.ErrUploadRejected, msg)
	}

	if msg == "" {
		msg = status
	}

	return models.UploadResult{Message: msg}, nil
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// sanitize truncates a response body for error messages and replaces
// control characters to prevent log injection.
func sanitize(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var b strings.Builder

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)

		switch {
		case r == utf8.RuneError && size <= 1:
			b.WriteByte('?')
		case r < 0x20 && r != '\t':
			b.WriteByte('?')
		default:
			b.Write(body[:size])
		}

		body = body[size:]
	}

	return b.String()
}
