// Package handler exposes the read side over HTTP: ranked word lists from
// the frequency index and the two similarity scans.
package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/segmenter"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
)

type Handler struct {
	index   *wordindex.Index
	scanner *similarity.Scanner
}

func New(index *wordindex.Index, scanner *similarity.Scanner) *Handler {
	return &Handler{index: index, scanner: scanner}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/words", h.ListWords)
	mux.HandleFunc("GET /api/v1/words/{word}", h.GetWord)
	mux.HandleFunc("GET /api/v1/sections/{section}", h.ListSectionWords)
	mux.HandleFunc("POST /api/v1/similar", h.FindSimilar)
	mux.HandleFunc("POST /api/v1/search", h.SearchByWords)
}

type similarRequest struct {
	Text string `json:"text"`
}

type searchRequest struct {
	Sections []string `json:"sections"`
	Words    []string `json:"words"`
}

func (h *Handler) ListWords(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	offset, limit, err := page(r)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	words, err := h.index.GetAppWords(r.Context(), tenantID, offset, limit)
	if err != nil {
		h.fail(w, r, "listing words", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"words": words})
}

func (h *Handler) GetWord(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	word := segmenter.Normalize(r.PathValue("word"))
	if word == "" {
		httpx.WriteAppError(w, apperrors.NewValidation("word", "must not be empty"))
		return
	}
	entry, err := h.index.GetAppWord(r.Context(), tenantID, word)
	if err != nil {
		h.fail(w, r, "fetching word", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"word":     word,
		"global":   entry.Global,
		"sections": entry.Sections,
	})
}

// ListSectionWords serves the section ranking; with distinct=true (or the
// legacy filterAppWords flag) the tenant-wide top words are subtracted.
func (h *Handler) ListSectionWords(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	section := r.PathValue("section")
	if err := validator.ValidateSection(section); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	offset, limit, err := page(r)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}

	if httpx.QueryBool(r, "distinct") || httpx.QueryBool(r, "filterAppWords") {
		words, err := h.index.GetDistinctiveSectionWords(r.Context(), tenantID, section, offset, limit)
		if err != nil {
			h.fail(w, r, "listing distinctive section words", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"section": section, "words_filtered": words})
		return
	}
	words, err := h.index.GetAppSectionWords(r.Context(), tenantID, section, offset, limit)
	if err != nil {
		h.fail(w, r, "listing section words", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"section": section, "words": words})
}

func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req similarRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	start := time.Now()
	matches, err := h.scanner.FindSimilar(r.Context(), tenantID, req.Text)
	if err != nil {
		h.fail(w, r, "similar scan", err)
		return
	}
	logger.FromContext(r.Context()).Info("similar scan",
		"matches", len(matches),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"documents": matches})
}

func (h *Handler) SearchByWords(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	matches, err := h.scanner.SearchByWords(r.Context(), tenantID, req.Sections, req.Words)
	if err != nil {
		h.fail(w, r, "word search", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"documents": matches})
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
	}
	return id, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op+" failed", "error", err)
	}
	httpx.WriteAppError(w, err)
}

// page reads offset and limit; a missing limit is left to the index default.
func page(r *http.Request) (int, int, error) {
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}
