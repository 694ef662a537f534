package e2e_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/auth"
	"github.com/alexjbarnes/inspect-sync/internal/catalog"
	"github.com/alexjbarnes/inspect-sync/internal/draft"
	"github.com/alexjbarnes/inspect-sync/internal/mcpserver"
	"github.com/alexjbarnes/inspect-sync/internal/media"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/alexjbarnes/inspect-sync/internal/remote"
	"github.com/alexjbarnes/inspect-sync/internal/server"
	"github.com/alexjbarnes/inspect-sync/internal/state"
	"github.com/coder/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUser     = "inspector"
	testDeviceID = "e2e-device"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const testAssetCatalog = `
nodes:
  - id: bridge-7
    name: Bridge 7
    files:
      - id: f-b7-plan
        name: plan.pdf
`

// remoteService is a stand-in for the remote event service. It accepts
// uploads over HTTP PUT and over a websocket, and can be told to fail.
type remoteService struct {
	mu        sync.Mutex
	received  map[string]string // uid -> event location
	attempts  int
	failures  int // remaining 503 responses
	rejecting bool
}

func newRemoteService() *remoteService {
	return &remoteService{received: make(map[string]string)}
}

func (rs *remoteService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /events/{uid}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.attempts++

		switch {
		case r.Header.Get(remote.DeviceHeader) != testDeviceID:
			w.WriteHeader(http.StatusForbidden)
			return
		case rs.failures > 0:
			rs.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		case rs.rejecting:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"missing inspector signature"}`))
			return
		}

		rs.received[r.PathValue("uid")] = gjson.GetBytes(body, "event.location").String()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"stored","message":"accepted by e2e"}`))
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		for {
			_, msg, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			uid := gjson.GetBytes(msg, "uid").String()

			rs.mu.Lock()
			rs.attempts++
			rs.received[uid] = gjson.GetBytes(msg, "event.location").String()
			rs.mu.Unlock()

			ack, _ := json.Marshal(map[string]string{"uid": uid, "status": "stored", "message": "accepted over ws"})
			if err := conn.Write(r.Context(), websocket.MessageText, ack); err != nil {
				return
			}
		}
	})

	return mux
}

func (rs *remoteService) location(uid string) (string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	loc, ok := rs.received[uid]
	return loc, ok
}

// failNext makes the next n HTTP uploads answer 503.
func (rs *remoteService) failNext(n int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures = n
}

// reject makes every later HTTP upload answer 422.
func (rs *remoteService) reject() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rejecting = true
}

func (rs *remoteService) attemptCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.attempts
}

// harness holds the full e2e test stack: a real HTTP server with the
// API-key protected MCP endpoint, the session manager over a bbolt store,
// a capture inbox watcher, and a remote event service.
type harness struct {
	URL        string
	Key        string
	Store      *state.State
	Manager    *draft.Manager
	Remote     *remoteService
	CaptureDir string
}

// newHarness wires the stack with the given upload transport ("http" or
// "websocket") and starts it.
func newHarness(t *testing.T, transport string) *harness {
	t.Helper()

	dir := t.TempDir()
	logger := quietLogger

	st, err := state.LoadAt(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	assets, err := catalog.ParseAssets([]byte(testAssetCatalog))
	require.NoError(t, err)

	rs := newRemoteService()
	remoteSrv := httptest.NewServer(rs.handler())
	t.Cleanup(remoteSrv.Close)

	var uploader draft.Uploader

	switch transport {
	case "websocket":
		ws := remote.NewWSUploader("ws"+strings.TrimPrefix(remoteSrv.URL, "http")+"/ws", "", testDeviceID, logger)
		t.Cleanup(func() { ws.Close() })
		uploader = ws
	default:
		uploader = remote.NewHTTPUploader(remoteSrv.URL, "remote-token", testDeviceID, nil)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	manager := draft.NewManager(runCtx, draft.Options{
		Store:    st,
		Catalog:  assets,
		Uploader: uploader,
		Sync: draft.SyncConfig{
			MaxRetries:     3,
			RetryDelay:     10 * time.Millisecond,
			AttemptTimeout: 2 * time.Second,
		},
		Debounce: 50 * time.Millisecond,
		Logger:   logger,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, manager.Shutdown(ctx))
		cancelRun()
	})

	key := auth.GenerateKey()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "inspect-sync-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
		Events:   st,
		Sessions: manager,
		Assets:   assets,
		Logger:   logger,
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeyring([]auth.KeyHash{{UserID: testUser, Hash: string(hash)}}),
		MCPHandler: mcpHandler,
		Logger:     logger,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &harness{
		URL:        srv.URL,
		Key:        key,
		Store:      st,
		Manager:    manager,
		Remote:     rs,
		CaptureDir: filepath.Join(dir, "inbox"),
	}
}

// startWatcher runs the capture inbox watcher until the test ends. Files
// placed in the inbox beforehand are picked up by its initial scan.
func (h *harness) startWatcher(t *testing.T) {
	t.Helper()

	watcher := media.NewWatcher(h.CaptureDir, func(_ context.Context, c media.Capture) {
		facet := draft.FacetPhotos
		if c.Kind == media.KindAudio {
			facet = draft.FacetAudio
		}
		_ = h.Manager.Open(models.IdentityHint{NavigationID: c.Key}).AttachMedia(facet, c.Path)
	}, quietLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	t.Cleanup(func() {
		cancel()
		err := <-done
		require.True(t, err == nil || errors.Is(err, context.Canceled), "watcher: %v", err)
	})
}

// mcpSession connects an MCP client to the harness over HTTP, using a
// custom HTTP RoundTripper that injects the Authorization header.
func (h *harness) mcpSession(t *testing.T, token string) *mcp.ClientSession {
	t.Helper()

	session, err := h.connect(t, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func (h *harness) connect(t *testing.T, token string) (*mcp.ClientSession, error) {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &bearerTransport{
				token: token,
				base:  http.DefaultTransport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	return client.Connect(t.Context(), transport, nil)
}

// callTool calls a tool and decodes its JSON text content into dest.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, dest any) *mcp.CallToolResult {
	t.Helper()

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	if dest != nil && !result.IsError {
		require.NoError(t, json.Unmarshal([]byte(extractTextContent(t, result)), dest))
	}

	return result
}

// extractTextContent returns the text of the first content item.
func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent")
	return tc.Text
}

// waitBackground waits for final syncs started by closed sessions.
func (h *harness) waitBackground(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Manager.Background().Wait(ctx))
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)
	return bt.base.RoundTrip(req)
}
