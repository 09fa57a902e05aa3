package transport

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates an httptest request that appears to come from
// localhost so tsweb's debug access check passes.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_BroadcastAPI(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A"})
	start(t, tr)

	client, err := net.Dial("tcp", tr.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return len(tr.Peers()) == 1 }, waitFor, 10*time.Millisecond)

	mux := http.NewServeMux()
	tr.AttachAdminRoutes(mux)

	tests := []struct {
		name     string
		method   string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{"valid line", http.MethodPost, url.Values{"line": {"SOIL ORGANIC 2 9"}}, http.StatusOK, "SOIL ORGANIC 2 9"},
		{"empty line", http.MethodPost, url.Values{"line": {"  "}}, http.StatusBadRequest, "missing line"},
		{"GET not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed, "method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/broadcast-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "SOIL ORGANIC 2 9\n", string(buf[:n]))
}

func TestAttachAdminRoutes_PeersAndStats(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A", Roster: map[string]int{"B": 1}})
	defer tr.ln.Close()

	mux := http.NewServeMux()
	tr.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/peers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var peers []PeerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peers))
	assert.Empty(t, peers)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/transport-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Pending)
}
