package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/scheduler"
	"github.com/nhle/bizops/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.NotificationFilter{
		UnreadOnly: q.Get("unreadOnly") == "true",
		Limit:      defaultPageSize,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	ns, err := s.store.ListNotifications(r.Context(), userID(r), f)
	if err != nil {
		s.internalError(w, "listing notifications", err)
		return
	}
	if ns == nil {
		ns = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *server) countUnread(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountUnread(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, "counting unread notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	err := s.store.MarkNotificationRead(r.Context(), userID(r), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case err != nil:
		s.internalError(w, "marking notification read", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.MarkAllNotificationsRead(r.Context(), userID(r))
	if err != nil {
		s.internalError(w, "marking notifications read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteNotification(r.Context(), userID(r), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case err != nil:
		s.internalError(w, "deleting notification", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) liveFeed(w http.ResponseWriter, r *http.Request) {
	s.feed.Serve(w, r, userID(r))
}

func (s *server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Statuses())
}

func (s *server) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	// A client hanging up must not abort the batch halfway; the
	// scheduler still bounds the run with its own timeout.
	err := s.jobs.RunNow(context.WithoutCancel(r.Context()), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown job")
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, "job is already running")
	case err != nil:
		s.internalError(w, "running job "+name, err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "done"})
	}
}

func (s *server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
