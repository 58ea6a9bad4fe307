package documents

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowyourfan-backend/internal/shared/server/middleware"
	"knowyourfan-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/upload", h.upload)
	rg.GET("/documents", h.list)
	rg.POST("/documents/:type", h.submit)
	rg.GET("/documents/:type", h.get)
	rg.POST("/documents/:type/verify", h.verify)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("document")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "document must be 10MB or smaller", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "document file is required", nil)
		return
	}
	docType := strings.TrimSpace(c.PostForm("type"))
	c.Set(middleware.DocumentTypeKey, docType)
	if docType == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "type is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	rec, err := h.Svc.Upload(c.Request.Context(), userID, docType, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, "->"+string(rec.Status))
	respond.Created(c, toResponse(rec))
}

func (h *Handler) submit(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	docType := c.Param("type")
	c.Set(middleware.DocumentTypeKey, docType)

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	rec, err := h.Svc.Submit(c.Request.Context(), userID, docType, FileMeta{
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		StoragePath:  req.StoragePath,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, "->"+string(rec.Status))
	respond.Created(c, toResponse(rec))
}

func (h *Handler) get(c *gin.Context) {
	docType := c.Param("type")
	c.Set(middleware.DocumentTypeKey, docType)

	rec, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), docType)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(rec))
}

func (h *Handler) list(c *gin.Context) {
	recs, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toResponse(rec))
	}
	respond.OK(c, gin.H{"documents": resp})
}

func (h *Handler) verify(c *gin.Context) {
	docType := c.Param("type")
	c.Set(middleware.DocumentTypeKey, docType)

	rec, tr, err := h.Svc.VerifyTransition(c.Request.Context(), middleware.UserIDFromContext(c), docType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, tr.String())
	respond.OK(c, toVerifyResponse(rec))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid document type or file details", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "no uploaded document of this type", nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "verification already in progress", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusServiceUnavailable, "request_aborted", "request was cancelled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process document", nil)
	}
}
