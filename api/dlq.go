package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/dlq"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/scheduler"
)

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	var (
		entries []*dlq.Entry
		err     error
	)
	if entityType := queryParam(r, "entityType"); entityType != "" {
		entries, err = h.notifier.DLQ().FindByEntityType(r.Context(), entityType, opts)
	} else {
		entries, err = h.notifier.DLQ().FindPending(r.Context(), opts)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getDLQ(w http.ResponseWriter, r *http.Request) {
	dlqID, err := id.ParseDLQID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID")
		return
	}

	entry, getErr := h.notifier.DLQ().Get(r.Context(), dlqID)
	if getErr != nil {
		if errors.Is(getErr, slipnotify.ErrDLQNotFound) {
			writeError(w, http.StatusNotFound, "DLQ entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

type resolveDLQRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *Handler) resolveDLQ(w http.ResponseWriter, r *http.Request) {
	dlqID, err := id.ParseDLQID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID")
		return
	}

	var req resolveDLQRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	entry, resolveErr := h.notifier.DLQ().MarkResolved(r.Context(), dlqID, req.ResolvedBy)
	if resolveErr != nil {
		if errors.Is(resolveErr, slipnotify.ErrDLQNotFound) {
			writeError(w, http.StatusNotFound, "DLQ entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, resolveErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) dlqStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.notifier.DLQ().Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type purgeDLQRequest struct {
	// OlderThanDays bounds the purge to resolved entries that failed at
	// least this many days ago. Defaults to 30.
	OlderThanDays int `json:"older_than_days,omitempty"`
}

func (h *Handler) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	req := purgeDLQRequest{OlderThanDays: 30}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.OlderThanDays < 0 {
		writeError(w, http.StatusBadRequest, "older_than_days must not be negative")
		return
	}

	before := time.Now().AddDate(0, 0, -req.OlderThanDays)
	purged, err := h.notifier.DLQ().PurgeResolved(r.Context(), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

func (h *Handler) triggerSweep(w http.ResponseWriter, r *http.Request) {
	counters, err := h.notifier.Sweeper().RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrSweepRunning) {
			writeError(w, http.StatusConflict, "a sweep is already running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, counters)
}
