package documents

import (
	"net"
	"net/http"

	"epserver/core"
	"epserver/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	DocumentCreateRequest struct {
		Title    string       `json:"title" validate:"max=1000"`
		Document string       `json:"document"`
		History  core.History `json:"history"`
	}

	DocumentCreateResponse struct {
		URL     string       `json:"url"`
		Hash    string       `json:"hash"`
		History core.History `json:"history"`
	}

	DocumentGetResponse struct {
		Data    string       `json:"data"`
		History core.History `json:"history"`
	}

	PurgeResponse struct {
		NumRowsDeleted int64 `json:"numRowsDeleted"`
	}

	ErrorResponse struct {
		Detail string `json:"detail"`
	}
)

var validate = validator.New()

// HandleCreate stores the posted document under the digest in the path.
// maxBodyBytes bounds the whole JSON body, which carries history on top of the document.
func HandleCreate(service *core.DocumentService, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		digest := chi.URLParam(r, "digest")

		body := &DocumentCreateRequest{}
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				renderError(w, r, errors.Wrap(core.ErrPayloadTooLarge, "request body"))
				return
			}
			renderError(w, r, errors.Wrap(core.ErrInvalidRequest, err.Error()))
			return
		}
		if err := validate.Struct(body); err != nil {
			renderError(w, r, errors.Wrap(core.ErrInvalidRequest, err.Error()))
			return
		}

		result, err := service.Create(r.Context(), digest, core.CreateRequest{
			Title:    body.Title,
			Document: body.Document,
			History:  body.History,
			ClientIP: clientIP(r),
		})
		if err != nil {
			renderError(w, r, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, DocumentCreateResponse{URL: result.URL, Hash: result.Hash, History: result.History})
	}
}

func HandleGet(service *core.DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		result, err := service.Get(r.Context(), id)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, DocumentGetResponse{Data: result.Data, History: result.History})
	}
}

func HandlePurge(service *core.DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := service.PurgeTestDocuments(r.Context())
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, PurgeResponse{NumRowsDeleted: n})
	}
}

func HandleHealth(service *core.DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := service.Ping(r.Context()); err != nil {
			logrus.WithField("error", err).Error("Health check failed")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unhealthy"})
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "healthy"})
	}
}

// renderError maps domain errors onto status codes. Digest mismatches read as not-found so
// clients learn nothing about stored content.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, detail := http.StatusInternalServerError, "internal", "Internal server error"
	switch {
	case errors.Is(err, core.ErrIntegrityMismatch):
		status, kind, detail = http.StatusNotFound, "integrity", "Document not found."
	case errors.Is(err, core.ErrNotFound):
		status, kind, detail = http.StatusNotFound, "not_found", "Document not found"
	case errors.Is(err, core.ErrPayloadTooLarge):
		status, kind, detail = http.StatusRequestEntityTooLarge, "too_large", "Document too large, maximum document size exceeded"
	case errors.Is(err, core.ErrInvalidRequest):
		status, kind, detail = http.StatusBadRequest, "invalid", err.Error()
	}

	log := logrus.WithFields(logrus.Fields{"path": r.URL.Path, "status": status})
	if status == http.StatusInternalServerError {
		log.WithField("error", err).Error("Request failed")
	} else {
		log.WithField("error", err).Debug("Request rejected")
	}
	metrics.DocumentErrors.WithLabelValues(kind).Inc()

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
