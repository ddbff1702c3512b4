package robotapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"
)

// AdminCommandTimeout bounds a command sent from the debug page.
const AdminCommandTimeout = 5 * time.Second

// AttachAdminRoutes mounts robot debugging endpoints under /debug/. They are
// only reachable from localhost or the tailnet.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("robot-command", "send a raw command to the robot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		state := "disconnected"
		if l.Connected() {
			state = "connected"
		}
		fmt.Fprintf(w, "<p>Robot link: %s</p>\n", state)
		io.WriteString(w, `<form method="POST" action="/debug/robot-command-api">`+
			`<input name="command" placeholder="LIDAR"> <button>Send</button></form>`)
	})

	debug.HandleSilentFunc("robot-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), AdminCommandTimeout)
		defer cancel()
		reply, err := l.Command(ctx, command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Command %q failed: %v", command, err), http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, "%s -> %s\n", command, reply)
	})
}
