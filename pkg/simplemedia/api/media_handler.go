package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// UploadField is the multipart field holding the uploaded file
const UploadField = "upload_file"

const defaultMaxMemory = 32 << 20

// MediaHandler exposes simplemedia.Service over HTTP
type MediaHandler struct {
	service simplemedia.Service
	logger  *slog.Logger
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service simplemedia.Service, logger *slog.Logger) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{
		service: service,
		logger:  logger.With("component", "api"),
	}
}

// Routes returns the routes for stored media, keyed by file id
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{fileID}", h.Get)
	r.Delete("/{fileID}", h.MarkDelete)
	r.Post("/{fileID}/use", h.MarkUse)
	r.Post("/{fileID}/crop", h.Crop)

	return r
}

// MarkResponse reports the outcome of a lifecycle transition. Result is 1
// when the asset changed and 0 when it was missing or hidden.
type MarkResponse struct {
	FileID string `json:"file_id"`
	Result int    `json:"result"`
}

// GCResponse reports one garbage collection batch
type GCResponse struct {
	Type      string `json:"type"`
	Collected int    `json:"collected"`
}

// Upload stores a multipart upload under the profile named by {type}
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	typeKey := chi.URLParam(r, "type")

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		badRequest(w, r, UploadField, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(UploadField)
	if err != nil {
		badRequest(w, r, UploadField, "upload_file is required")
		return
	}
	defer file.Close()

	rotate := 0
	if v := r.FormValue("rotate"); v != "" {
		rotate, err = strconv.Atoi(v)
		if err != nil {
			badRequest(w, r, "rotate", "rotate must be an integer")
			return
		}
	}

	crop, err := cropFromForm(r)
	if err != nil {
		badRequest(w, r, "crop", err.Error())
		return
	}

	result, err := h.service.Upload(r.Context(), simplemedia.UploadRequest{
		Type:   typeKey,
		Reader: file,
		Rotate: rotate,
		Crop:   crop,
		Fields: customFields(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Get returns the details of a visible asset
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Get(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, details)
}

// MarkUse pins an asset so it is never collected
func (h *MediaHandler) MarkUse(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	n, err := h.service.MarkUse(r.Context(), fileID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, MarkResponse{FileID: fileID, Result: n})
}

// MarkDelete hides an asset and tombstones its files
func (h *MediaHandler) MarkDelete(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	n, err := h.service.MarkDelete(r.Context(), fileID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, MarkResponse{FileID: fileID, Result: n})
}

// Crop re-derives cropped variants from a JSON crop box. An empty body or
// incomplete box selects the automatic crop.
func (h *MediaHandler) Crop(w http.ResponseWriter, r *http.Request) {
	var params simplemedia.CropParams
	if err := render.DecodeJSON(r.Body, &params); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, r, "crop", "invalid crop body: "+err.Error())
		return
	}

	result, err := h.service.Crop(r.Context(), chi.URLParam(r, "fileID"), params)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, result)
}

// GarbageCollect runs one collection batch for the profile named by {type}
func (h *MediaHandler) GarbageCollect(w http.ResponseWriter, r *http.Request) {
	typeKey := chi.URLParam(r, "type")
	n, err := h.service.GarbageCollect(r.Context(), typeKey)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, GCResponse{Type: typeKey, Collected: n})
}

var cropKeys = []string{"left", "top", "width", "height"}

// cropFromForm reads crop[left], crop[top], crop[width] and crop[height].
// It returns nil when none is present.
func cropFromForm(r *http.Request) (*simplemedia.CropParams, error) {
	values := make(map[string]*int, len(cropKeys))
	for _, key := range cropKeys {
		raw := r.FormValue("crop[" + key + "]")
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("crop[" + key + "] must be an integer")
		}
		values[key] = &v
	}
	if len(values) == 0 {
		return nil, nil
	}
	return &simplemedia.CropParams{
		Left:   values["left"],
		Top:    values["top"],
		Width:  values["width"],
		Height: values["height"],
	}, nil
}

// customFields collects every form value that is not a reserved parameter
func customFields(r *http.Request) map[string]string {
	fields := make(map[string]string)
	if r.MultipartForm == nil {
		return fields
	}
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 || reserved(key) {
			continue
		}
		fields[key] = values[0]
	}
	return fields
}

func reserved(key string) bool {
	return key == "rotate" || key == SecretQueryParam || strings.HasPrefix(key, "crop[")
}
