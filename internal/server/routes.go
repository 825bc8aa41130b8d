package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janhae4/DATN-sub006/internal/identity"
	"github.com/janhae4/DATN-sub006/internal/signaling"
)

// Configure the websocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The media path never touches this server, only signaling does; origin
	// policy is expected to be enforced by the fronting proxy.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns the handler that upgrades signaling connections and hands
// them to the hub. provider may be nil when no identity directory is
// configured.
func ServeWs(hub *signaling.Hub, provider identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "err", err)
			return
		}

		// The member id is the transport-session identity; the optional user
		// query parameter carries the application identity for the directory.
		client := signaling.NewClient(hub, conn, uuid.NewString(), r.URL.Query().Get("user"), provider)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// NewMux assembles the signald HTTP surface: websocket signaling, health,
// and Prometheus metrics.
func NewMux(hub *signaling.Hub, provider identity.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Signaling server is healthy."))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", ServeWs(hub, provider))
	return mux
}
