package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/resources"
)

// maxUploadSize bounds multipart uploads (25 MiB, enough for voice notes).
const maxUploadSize = 25 << 20

type ResourceHandler struct {
	service *resources.Service
}

func NewResourceHandler(service *resources.Service) *ResourceHandler {
	return &ResourceHandler{service: service}
}

type ResourceResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
}

func resourceToResponse(resource *models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          resource.ID.String(),
		Kind:        string(resource.Kind),
		Name:        resource.Name,
		ContentType: resource.ContentType,
		Size:        resource.Size,
		CreatedAt:   resource.CreatedAt.Format(time.RFC3339),
	}
}

// Upload handles POST /api/v1/resources. Multipart form with a "file"
// part and an optional "kind" field (file or voice_note).
func (h *ResourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"file": "File part is required"},
		})
		return
	}
	defer file.Close()

	kind := models.ResourceKind(r.FormValue("kind"))
	if kind == "" {
		kind = models.ResourceKindFile
	}
	if kind != models.ResourceKindFile && kind != models.ResourceKindVoiceNote {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"kind": "Kind must be file or voice_note"},
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Unreadable file"})
		return
	}

	resource, err := h.service.Upload(r.Context(), userID, kind, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to upload resource"})
		return
	}

	writeJSON(w, http.StatusCreated, resourceToResponse(resource))
}

// List handles GET /api/v1/resources
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list resources"})
		return
	}

	response := make([]ResourceResponse, len(list))
	for i, resource := range list {
		response[i] = resourceToResponse(&resource)
	}
	writeJSON(w, http.StatusOK, response)
}

// Download handles GET /api/v1/resources/:id/content
func (h *ResourceHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resourceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid resource ID"})
		return
	}

	resource, data, err := h.service.Download(r.Context(), userID, resourceID)
	if errors.Is(err, resources.ErrResourceNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Resource not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to download resource"})
		return
	}

	contentType := resource.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+resource.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Delete handles DELETE /api/v1/resources/:id
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resourceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid resource ID"})
		return
	}

	err = h.service.Delete(r.Context(), userID, resourceID)
	if errors.Is(err, resources.ErrResourceNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Resource not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete resource"})
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Resource deleted"})
}
