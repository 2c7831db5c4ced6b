package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/delivery"
	"github.com/Mister-Storm/slipnotify/id"
	"github.com/Mister-Storm/slipnotify/slip"
	"github.com/Mister-Storm/slipnotify/subscriber"
)

type createSubscriberRequest struct {
	ClientID     string   `json:"client_id,omitempty"`
	URL          string   `json:"url"`
	Description  string   `json:"description,omitempty"`
	Events       []string `json:"events"`
	MaxRetries   int      `json:"max_retries,omitempty"`
	RetryDelayMs int      `json:"retry_delay_ms,omitempty"`
}

// createSubscriberResponse carries the signing secret exactly once. The
// subscriber entity itself never serializes it.
type createSubscriberResponse struct {
	*subscriber.Subscriber
	Secret string `json:"secret"`
}

func (h *Handler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var req createSubscriberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events := make([]slip.EventType, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, slip.EventType(ev))
	}

	sub, err := h.notifier.Subscribers().Create(r.Context(), subscriber.Input{
		ClientID:     req.ClientID,
		URL:          req.URL,
		Description:  req.Description,
		Events:       events,
		MaxRetries:   req.MaxRetries,
		RetryDelayMs: req.RetryDelayMs,
	})
	if err != nil {
		var verr *subscriber.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createSubscriberResponse{
		Subscriber: sub,
		Secret:     sub.Secret,
	})
}

func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	opts := subscriber.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if v := queryParam(r, "active"); v != "" {
		active := v == "true"
		opts.Active = &active
	}

	subs, err := h.notifier.Subscribers().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) getSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriberID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return
	}

	sub, getErr := h.notifier.Subscribers().Get(r.Context(), subID)
	if getErr != nil {
		if errors.Is(getErr, slipnotify.ErrSubscriberNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriberID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return
	}

	if deleteErr := h.notifier.DeleteSubscriber(r.Context(), subID); deleteErr != nil {
		if errors.Is(deleteErr, slipnotify.ErrSubscriberNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, http.StatusInternalServerError, deleteErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type testDeliveryResponse struct {
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) testSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriberID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return
	}

	sub, getErr := h.notifier.Subscribers().Get(r.Context(), subID)
	if getErr != nil {
		if errors.Is(getErr, slipnotify.ErrSubscriberNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	att := h.notifier.TestDelivery(r.Context(), sub)

	resp := testDeliveryResponse{
		Delivered:  att.State == delivery.StateDelivered,
		StatusCode: att.LastStatusCode,
		Error:      att.LastError,
	}
	status := http.StatusOK
	if !resp.Delivered {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriberID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return
	}

	newSecret, rotateErr := h.notifier.Subscribers().RotateSecret(r.Context(), subID)
	if rotateErr != nil {
		if errors.Is(rotateErr, slipnotify.ErrSubscriberNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, http.StatusInternalServerError, rotateErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": newSecret})
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriberID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return
	}

	opts := delivery.ListOpts{
		Offset:       queryInt(r, "offset", 0),
		Limit:        queryInt(r, "limit", 50),
		SubscriberID: &subID,
	}
	if v := queryParam(r, "state"); v != "" {
		state := delivery.State(v)
		opts.State = &state
	}
	if v := queryParam(r, "slip_id"); v != "" {
		slipID, parseErr := id.ParseAny(v)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid slip ID")
			return
		}
		opts.SlipID = &slipID
	}

	attempts, listErr := h.notifier.Store().ListAttempts(r.Context(), opts)
	if listErr != nil {
		writeError(w, http.StatusInternalServerError, listErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, attempts)
}
