package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BiancaGL2104/rag-book-recommender/internal/logging"
	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
	"github.com/BiancaGL2104/rag-book-recommender/internal/store"
)

// maxRequestBytes caps the POST /api/recommend body.
const maxRequestBytes = 64 << 10

// handleRecommend handles POST /api/recommend. The body is a rag.Query;
// the reply is a rag.Response or a classified error.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var q rag.Query
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		badRequest(w, r, "text is required")
		return
	}
	if q.K < 0 {
		badRequest(w, r, "k must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.rec.Answer(ctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logging.FromContext(r.Context()).Info("client went away before the answer was ready")
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleInteractions handles GET /api/interactions?limit=N, newest first.
func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 20, 1, 200)
	if !ok {
		return
	}
	recs, err := s.cfg.Interactions.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []rag.InteractionRecord{}
	}
	writeJSON(w, r, http.StatusOK, recs)
}

// handleInteraction handles GET /api/interactions/{id}.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Interactions.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: rag.Failure{Kind: rag.KindInvalidRequest, Message: err.Error()}})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// handleCitationStats handles GET /api/stats/citations?limit=N: the most
// recommended books.
func (s *Server) handleCitationStats(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 10, 1, 100)
	if !ok {
		return
	}
	counts, err := s.cfg.Interactions.CitationCounts(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if counts == nil {
		counts = []store.CitationCount{}
	}
	writeJSON(w, r, http.StatusOK, counts)
}

// handleSimilar handles GET /api/books/{id}/similar?k=N.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	k, ok := intParam(w, r, "k", s.cfg.Books.DefaultK(), 1, s.cfg.Books.MaxK())
	if !ok {
		return
	}
	result, err := s.cfg.Books.Similar(r.Context(), r.PathValue("id"), k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleDistance handles GET /api/distance?a=ID&b=ID.
func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		badRequest(w, r, "query parameters a and b are required")
		return
	}
	d, err := s.cfg.Books.PairwiseDistance(r.Context(), a, b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, distanceResponse{A: a, B: b, Distance: d})
}

// intParam reads an optional integer query parameter within [lo, hi]. On
// failure it writes a 400 and returns false.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		badRequest(w, r, name+" must be an integer in ["+strconv.Itoa(lo)+", "+strconv.Itoa(hi)+"]")
		return 0, false
	}
	return n, true
}
