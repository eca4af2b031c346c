package memory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"memvault/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ownerID extracts the authenticated user. Authentication itself happens
// upstream; this layer only requires that the header is present.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Type        string `json:"type"`
		Link        string `json:"link"`
		Title       string `json:"title"`
		Description string `json:"description"`
		FileName    string `json:"fileName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Link == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "link is required", http.StatusBadRequest)
		return
	}

	m := &Memory{
		Type:        req.Type,
		Link:        req.Link,
		Title:       req.Title,
		Description: req.Description,
		FileName:    req.FileName,
		UserID:      userID,
	}
	if err := h.service.Create(r.Context(), m); err != nil {
		if errors.Is(err, ErrInvalidType) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(r.Context(), "create memory failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// 202-style: the document is accepted, ingestion continues in the
	// background. Clients poll the status endpoint.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": m}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	memories, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if memories == nil {
		memories = []Memory{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": memories,
		"meta": map[string]int{"count": len(memories)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	m, err := h.service.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Memory not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": m}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	status, err := h.service.Status(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Memory not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": status}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Memory not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r)
	if userID == "" {
		h.writeError(r.Context(), w, "UNAUTHORIZED", "X-User-ID header is required", http.StatusUnauthorized)
		return
	}

	count, err := h.service.Count(r.Context(), userID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]int{"count": count}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
