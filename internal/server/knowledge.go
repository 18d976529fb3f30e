package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/knowledge"
	"eventqual/internal/logging"
)

type searchResponse struct {
	Query   string             `json:"query"`
	Mode    knowledge.Mode     `json:"mode"`
	Count   int                `json:"count"`
	Results []knowledge.Result `json:"results"`
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeDetail(w, http.StatusServiceUnavailable, "knowledge store is not configured")
		return
	}
	q, err := ParseSearchQuery(r.URL.Query())
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.knowledge.Query(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q.Text, Mode: q.Mode, Count: len(results), Results: results})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeDetail(w, http.StatusServiceUnavailable, "knowledge store is not configured")
		return
	}
	cols, err := s.knowledge.Collections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cols == nil {
		cols = []knowledge.CollectionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cols})
}

// ParseSearchQuery builds a knowledge query from URL parameters:
// query, mode, limit, alpha, filter (JSON object), include_scores, collection.
func ParseSearchQuery(v url.Values) (knowledge.Query, error) {
	const op = "server.ParseSearchQuery"

	q := knowledge.NewQuery(strings.TrimSpace(v.Get("query")))
	if q.Text == "" {
		return q, eqerrors.New(eqerrors.EInvalidInput, op, "query is required")
	}
	if m := v.Get("mode"); m != "" {
		switch mode := knowledge.Mode(strings.ToLower(m)); mode {
		case knowledge.ModeSimilarity, knowledge.ModeKeyword, knowledge.ModeHybrid:
			q.Mode = mode
		default:
			return q, eqerrors.Newf(eqerrors.EInvalidInput, op, "unknown mode %q", m)
		}
	}
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return q, eqerrors.Newf(eqerrors.EInvalidInput, op, "limit must be a positive integer, got %q", l)
		}
		q.Limit = n
	}
	if a := v.Get("alpha"); a != "" {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil || f < 0 || f > 1 {
			return q, eqerrors.Newf(eqerrors.EInvalidInput, op, "alpha must be within [0,1], got %q", a)
		}
		q.Alpha = &f
	}
	if f := v.Get("filter"); f != "" {
		var filter knowledge.Filter
		if err := json.Unmarshal([]byte(f), &filter); err != nil || filter.Property == "" {
			return q, eqerrors.Newf(eqerrors.EInvalidInput, op, "filter must be a JSON object with a property, got %q", f)
		}
		q.Filter = &filter
	}
	if s := v.Get("include_scores"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, eqerrors.Newf(eqerrors.EInvalidInput, op, "include_scores must be a boolean, got %q", s)
		}
		q.IncludeScores = b
	}
	q.Collection = v.Get("collection")
	return q, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch eqerrors.CodeOf(err) {
	case eqerrors.EInvalidInput:
		status = http.StatusBadRequest
	case eqerrors.EStoreUnavailable, eqerrors.EExternalUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.ServerError("Request failed: %v", err)
	}
	writeDetail(w, status, err.Error())
}
