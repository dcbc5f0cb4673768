package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/go-chi/chi/v5"
)

// releaseBody is the POST /api/orders/{orderID}/release payload.
type releaseBody struct {
	Lines []release.ReleaseRequest `json:"lines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"releases": s.service.Limiter().Status(),
	})
}

func (s *Server) handleReleaseForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.service.ReleaseForm(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	contract, err := s.service.Contract(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	body, err := s.decodeRelease(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := withRequestMeta(r.Context(), r)
	result, err := s.service.Release(ctx, orderID, body.Lines)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// decodeRelease reads a release body. Unknown fields and trailing data are
// rejected so typos in field names cannot silently drop a quantity.
func (s *Server) decodeRelease(w http.ResponseWriter, r *http.Request) (*releaseBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var body releaseBody
	if err := dec.Decode(&body); err != nil {
		return nil, &badRequestError{err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &badRequestError{err: errors.New("unexpected data after JSON body")}
	}
	return &body, nil
}

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, r, &badRequestError{err: errors.New("limit must be a non-negative integer")})
			return
		}
		limit = n
	}

	entries, err := s.service.Releases(r.Context(), chi.URLParam(r, "orderID"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": entries})
}
