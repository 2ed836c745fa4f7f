package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"

	"github.com/Sternrassler/paradigm-offline/pkg/attendance"
	"github.com/Sternrassler/paradigm-offline/pkg/metrics"
	"github.com/Sternrassler/paradigm-offline/pkg/notify"
	"github.com/Sternrassler/paradigm-offline/pkg/syncqueue"
)

// routes builds the daemon mux. Everything not handled locally is proxied
// to the origin through the interceptor.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", a.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /connectivity", a.connectivityHandler)

	mux.Handle("POST /push", a.receiver)
	mux.HandleFunc("GET /notifications", a.listNotificationsHandler)
	mux.HandleFunc("POST /notifications/{id}/click", a.clickHandler)

	mux.HandleFunc("GET /sync", a.pendingSyncHandler)
	mux.HandleFunc("POST /sync/{tag}", a.requestSyncHandler)
	mux.HandleFunc("POST /sync/{tag}/dispatch", a.dispatchSyncHandler)
	mux.HandleFunc("POST /attendance", a.attendanceHandler)

	mux.Handle("/", a.proxy())
	return mux
}

func (a *app) proxy() *httputil.ReverseProxy {
	origin := a.config.OriginURL()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		Transport: a.worker.Transport(),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			a.logger.Warn().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Origin unreachable and nothing cached")
			http.Error(w, "origin unreachable", http.StatusBadGateway)
		},
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 200 once the current version is active and the
// store backend answers.
func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !a.controller.Active() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Lifecycle state: %s", a.controller.State())
		return
	}
	if a.storage.redis != nil {
		if err := a.storage.redis.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "Redis unavailable: %v", err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (a *app) connectivityHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tracker.State())
}

func (a *app) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.inbox.List())
}

func (a *app) clickHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.inbox.Get(r.PathValue("id"))
	if errors.Is(err, notify.ErrNotFound) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	if err := a.worker.Click(r.Context(), n); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": n.URL()})
}

func (a *app) pendingSyncHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := a.queue.Pending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"pending": pending})
}

func (a *app) requestSyncHandler(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	if err := a.worker.RequestSync(r.Context(), tag); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"tag": tag})
}

// dispatchSyncHandler delivers a recovery signal for one tag. A failing
// routine maps to 502 so the caller retries later.
func (a *app) dispatchSyncHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.worker.Sync(r.Context(), r.PathValue("tag")); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// attendanceHandler stores a record in the outbox and requests the
// attendance sync. While online the sync runs right away; a failed flush
// leaves the tag pending for the next recovery.
func (a *app) attendanceHandler(w http.ResponseWriter, r *http.Request) {
	var record attendance.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&record); err != nil {
		http.Error(w, "invalid attendance record", http.StatusBadRequest)
		return
	}

	stored, err := a.outbox.Add(r.Context(), record)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.worker.RequestSync(r.Context(), syncqueue.TagAttendance); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state := a.tracker.State()
	if state.IsOnline() {
		if err := a.worker.Sync(r.Context(), syncqueue.TagAttendance); err != nil {
			a.logger.Warn().Err(err).Str("record_id", stored.ID).Msg("Attendance flush deferred")
		}
	}
	writeJSON(w, http.StatusCreated, stored)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
