// Package server runs the HTTP surface: the voice WebSocket endpoint, a
// health check, and a small read-only API over active sessions.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/logging"
	"github.com/voxaid/voxaid/internal/voice"
)

// Deps holds what the server mounts.
type Deps struct {
	Hub      *voice.Hub
	Sessions *session.Registry
}

// Run starts the HTTP server and blocks until ctx is cancelled. On shutdown
// every live voice connection is closed first so final flushes run before the
// listener goes away.
func Run(ctx context.Context, addr string, deps Deps) error {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws/voice", deps.Hub.Handler())
	r.Get("/api/v1/sessions", listSessionsHandler(deps.Sessions))

	// ReadTimeout/WriteTimeout are omitted: they set deadlines on the
	// underlying net.Conn, which breaks hijacked WebSocket connections.
	// Keepalive on the voice socket is ping/pong.
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("[server] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		deps.Hub.CloseAll()
		return err
	case <-ctx.Done():
	}

	logging.Infof("[server] shutting down")
	deps.Hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type sessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Unflushed int       `json:"unflushed"`
	Pairs     int       `json:"pairs"`
}

func listSessionsHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		active := registry.Active()
		infos := make([]sessionInfo, 0, len(active))
		for _, s := range active {
			infos = append(infos, sessionInfo{
				ID:        s.ID,
				UserID:    s.UserID,
				CreatedAt: s.CreatedAt,
				Unflushed: s.Buffer.Unflushed(),
				Pairs:     s.Buffer.PairCount(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(infos)
	}
}
