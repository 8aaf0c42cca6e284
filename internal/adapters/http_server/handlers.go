package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"booking_feed/internal/app"
	"booking_feed/internal/domain"
)

const maxRecent = 100

// cursor layouts accepted besides RFC 3339
var cursorLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05"}

type Handlers struct{ Svc *app.Service }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.timeout))
			r.Get("/locations/{id}/updates", h.updates)
			r.Get("/locations/status", h.locationStatus)
			r.Get("/buffer/stats", h.bufferStats)
			r.Get("/buffer/recent", h.bufferRecent)
		})
		// a cycle can outlast the ordinary request timeout
		r.With(Timeout(s.cycleTimeout)).Post("/poll/trigger", h.triggerPoll)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrCycleInProgress):
		writeProblem(w, http.StatusConflict, "Cycle In Progress", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func parseCursor(s string) (time.Time, error) {
	for _, l := range cursorLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cursor %q is not a timestamp", domain.ErrInvalidRequest, s)
}

func parseDateParam(r *http.Request, name string) (domain.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return domain.Date{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidRequest, name)
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		return domain.Date{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRequest, name, err)
	}
	return d, nil
}

func (h *Handlers) updates(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	req := app.FeedRequest{LocationID: id}
	if req.DateFrom, err = parseDateParam(r, "date_from"); err != nil {
		writeError(w, err)
		return
	}
	if req.DateTo, err = parseDateParam(r, "date_to"); err != nil {
		writeError(w, err)
		return
	}
	if c := r.URL.Query().Get("cursor"); c != "" {
		t, err := parseCursor(c)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Cursor = &t
	}

	resp, err := h.Svc.Feed.Poll(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) bufferStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.Buffer.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) bufferRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var loc *int64
	if ls := q.Get("location_id"); ls != "" {
		id, err := strconv.ParseInt(ls, 10, 64)
		if err != nil || id <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid location_id", "location_id must be a positive number")
			return
		}
		loc = &id
	}
	limit := maxRecent
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > maxRecent {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = l
	}

	recs, err := h.Svc.Buffer.Recent(r.Context(), loc, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": recs, "count": len(recs)})
}

func (h *Handlers) locationStatus(w http.ResponseWriter, r *http.Request) {
	sts, err := h.Svc.Poller.Statuses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	etag, body := calcETagAndBody(map[string]any{"locations": sts})
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write status body")
	}
}

func (h *Handlers) triggerPoll(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh && h.Svc.DirectoryCache != nil {
		h.Svc.DirectoryCache.Invalidate(r.Context(), nil)
	}
	// a cycle outlives a dropped client; its own lease and timeouts bound it
	rep, err := h.Svc.Poller.TriggerNow(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
