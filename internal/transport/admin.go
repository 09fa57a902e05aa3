package transport

import (
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rovernav/internal/httputil"
)

// AttachAdminRoutes mounts transport debug pages under /debug/ on mux. They
// are reachable only from localhost or over Tailscale.
func (t *Transport) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Transport pending peers", func() any { return strings.Join(t.Pending(), ", ") })

	debug.HandleFunc("peers", "connected peer sockets", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, t.Peers())
	})

	debug.HandleFunc("transport-stats", "transport counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, t.Stats())
	})

	// API endpoint to queue a raw line on every connection
	debug.HandleSilentFunc("broadcast-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		line := strings.TrimSpace(r.FormValue("line"))
		if line == "" {
			httputil.BadRequest(w, "missing line")
			return
		}
		if strings.ContainsAny(line, "\r\n") {
			httputil.BadRequest(w, "line must not contain newlines")
			return
		}
		t.Broadcast(line)
		httputil.WriteJSONOK(w, map[string]any{"line": line, "connections": len(t.Peers())})
	})
}
