// Package handler exposes the ingestion service over HTTP: ingest, list,
// fetch and delete documents of the calling tenant.
package handler

import (
	"errors"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion/service"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/tenant"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/logger"
)

type Handler struct {
	service *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts the document routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /api/v1/documents", h.List)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	var req ingestion.IngestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, err)
		return
	}

	resp, err := h.service.Ingest(ctx, tenantID, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		var indexErr *service.IndexUpdateError
		if errors.As(err, &indexErr) {
			log.Error("document stored but not indexed",
				"document_id", indexErr.DocumentID,
				"error", err,
			)
			httpx.WriteJSON(w, statusCode, map[string]string{
				"error":       "document stored but index update failed",
				"document_id": indexErr.DocumentID,
			})
			return
		}
		if statusCode >= http.StatusInternalServerError {
			log.Error("ingestion failed", "error", err, "status_code", statusCode)
		}
		httpx.WriteAppError(w, err)
		return
	}

	status := http.StatusCreated
	switch resp.Status {
	case ingestion.StatusQueued:
		status = http.StatusAccepted
	case ingestion.StatusDuplicate:
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", service.DefaultPageSize)
	if err != nil {
		httpx.WriteAppError(w, err)
		return
	}
	docs, err := h.service.List(ctx, tenantID, offset, limit)
	if err != nil {
		h.fail(w, r, "listing documents", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
		return
	}
	doc, err := h.service.Get(ctx, tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "fetching document", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing tenant")
		return
	}
	doc, err := h.service.Delete(ctx, tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "deleting document", err)
		return
	}
	logger.FromContext(ctx).Info("document deleted", "document_id", doc.ID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"document": doc, "deleted": true})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op+" failed", "error", err)
	}
	httpx.WriteAppError(w, err)
}
