package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

//go:generate mockgen -source=ws.go -destination=mock_wsconn_test.go -package=remote

// wsConn abstracts the WebSocket connection for testing. *websocket.Conn
// satisfies it.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// wsRequest is one upload over the socket.
type wsRequest struct {
	Op string `json:"op"`
	payload
}

// WSUploader uploads events over a single WebSocket connection, one
// request and one response per upload. The connection is dialled on
// first use and again after any failure. Uploads take turns on the
// connection; one waiting for its turn gives up when its context ends.
type WSUploader struct {
	url      string
	token    string
	deviceID string
	logger   *slog.Logger
	dial     func(ctx context.Context) (wsConn, error)

	guard *semaphore.Weighted
	conn  wsConn
}

// NewWSUploader creates an uploader for the given ws:// or wss:// URL.
func NewWSUploader(url, token, deviceID string, logger *slog.Logger) *WSUploader {
	w := &WSUploader{
		url:      url,
		token:    token,
		deviceID: deviceID,
		logger:   logger,
		guard:    semaphore.NewWeighted(1),
	}
	w.dial = w.dialWebsocket

	return w
}

func (w *WSUploader) dialWebsocket(ctx context.Context) (wsConn, error) {
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	if w.deviceID != "" {
		header.Set(DeviceHeader, w.deviceID)
	}

	w.logger.Debug("connecting", slog.String("url", w.url))

	conn, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: header}) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}

	conn.SetReadLimit(maxResponseBytes)

	return conn, nil
}

// Upload sends one event and waits for its acknowledgement. Connection
// failures are TransientError and drop the connection.
func (w *WSUploader) Upload(ctx context.Context, uid string, d models.EventDraft) (models.UploadResult, error) {
	data, err := json.Marshal(wsRequest{
		Op:      "upload",
		payload: payload{UID: uid, Device: w.deviceID, Event: d},
	})
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("marshalling event %s: %w", uid, err)
	}

	if err := w.guard.Acquire(ctx, 1); err != nil {
		return models.UploadResult{}, &TransientError{Err: fmt.Errorf("waiting for connection to send %s: %w", uid, err)}
	}
	defer w.guard.Release(1)

	if w.conn == nil {
		conn, err := w.dial(ctx)
		if err != nil {
			return models.UploadResult{}, &TransientError{Err: err}
		}

		w.conn = conn
	}

	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		w.drop()
		return models.UploadResult{}, &TransientError{Err: fmt.Errorf("sending %s: %w", uid, err)}
	}

	_, resp, err := w.conn.Read(ctx)
	if err != nil {
		w.drop()
		return models.UploadResult{}, &TransientError{Err: fmt.Errorf("reading ack for %s: %w", uid, err)}
	}

	if got := gjson.GetBytes(resp, "uid").String(); got != "" && got != uid {
		w.drop()
		return models.UploadResult{}, &TransientError{
			Err: fmt.Errorf("ack for %s while waiting for %s", got, uid),
		}
	}

	return interpret(resp)
}

func (w *WSUploader) drop() {
	if w.conn == nil {
		return
	}

	_ = w.conn.Close(websocket.StatusGoingAway, "reset")
	w.conn = nil
}

// Close closes the connection if one is open.
func (w *WSUploader) Close() error {
	if err := w.guard.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer w.guard.Release(1)

	if w.conn == nil {
		return nil
	}

	err := w.conn.Close(websocket.StatusNormalClosure, "bye")
	w.conn = nil

	return err
}
