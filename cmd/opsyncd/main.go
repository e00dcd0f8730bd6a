// opsyncd hosts the offline mutation sync engine as a local daemon:
// it persists pending mutations, replays them against the remote service
// when connectivity allows, and pushes queue events to UI clients over
// WebSocket.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kimhsiao/opsync/internal/config"
	"github.com/kimhsiao/opsync/internal/connectivity"
	"github.com/kimhsiao/opsync/internal/engine"
	"github.com/kimhsiao/opsync/internal/logging"
	"github.com/kimhsiao/opsync/internal/models"
	"github.com/kimhsiao/opsync/internal/store"
	"github.com/kimhsiao/opsync/internal/transport"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logging.Init(os.Stdout, level)
	logging.Info("opsyncd starting", map[string]interface{}{
		"version": Version,
		"remote":  cfg.RemoteBaseURL,
		"listen":  cfg.ListenAddr,
	})

	st, err := store.OpenSQLite(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open durable store", err,
			map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer st.Close()

	dispatcher := transport.NewHTTPDispatcher(cfg.RemoteBaseURL,
		transport.StaticToken(cfg.AuthToken), cfg.DispatchTimeout)

	eng := engine.New(st, dispatcher, nil, connectivity.Config{
		BackgroundInterval: cfg.BackgroundInterval,
		RunTimeout:         cfg.RunTimeout,
	})

	hub := NewWSHub()
	unsubscribe := eng.AddListener(hub.BroadcastEvent)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/status", statusHandler(eng))
	mux.HandleFunc("/sync", syncHandler(eng))
	mux.HandleFunc("/requeue", requeueHandler(eng))

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err, nil)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	server.Shutdown(context.Background())
}

// statusHandler reports queue depth for UI badges. Reads go straight to
// the store and never wait on an in-flight run.
func statusHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := eng.PendingCount(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		held, err := eng.ListHeld(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pending": pending,
			"held":    len(held),
		})
	}
}

// syncHandler triggers an immediate processing pass.
func syncHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		started := eng.TriggerSync(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"started": started})
	}
}

// requeueHandler returns a held operation to the automatic retry path.
func requeueHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}

		if err := eng.RequeueHeld(r.Context(), models.UUID(id)); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
