package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"intakeservice/internal/errdefs"
	"intakeservice/internal/model"
	"intakeservice/pkg/logging"
)

// jsonBlobField selects the submission shape: when present, all text fields
// arrive as one JSON document under this field instead of flat form fields.
const jsonBlobField = "data"

const multipartMemoryLimit = 32 << 20

type IntakeRunner interface {
	HandleSubmission(ctx context.Context, sub *model.Submission) (*model.Receipt, error)
}

type RecordGetter interface {
	Get(ctx context.Context, documentID string) (*model.StructuredRecord, error)
}

type RecordCache interface {
	Get(ctx context.Context, documentID string) (*model.StructuredRecord, bool)
	Set(ctx context.Context, documentID string, record *model.StructuredRecord)
}

type IntakeHandler struct {
	service     IntakeRunner
	records     RecordGetter
	cache       RecordCache
	memoryLimit int64
}

func NewIntakeHandler(service IntakeRunner, records RecordGetter, cache RecordCache) *IntakeHandler {
	return &IntakeHandler{
		service:     service,
		records:     records,
		cache:       cache,
		memoryLimit: multipartMemoryLimit,
	}
}

func (h *IntakeHandler) RegisterRoutes(r chi.Router) {
	// Route name kept for compatibility with the deployed survey frontend.
	r.Post("/upload-and-email", h.Submit)
	r.Get("/submissions/{id}", h.GetSubmission)
}

func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(h.memoryLimit); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	// Single release point for every temp file the framework spilled to disk.
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub, err := buildSubmission(r)
	if err != nil {
		if logger, ok := logging.GetFromContext(ctx); ok {
			logger.Error(ctx, "failed to build submission", zap.Error(err))
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid submission payload")
		return
	}

	receipt, err := h.service.HandleSubmission(ctx, sub)
	if err != nil {
		if logger, ok := logging.GetFromContext(ctx); ok {
			logger.Error(ctx, "submission failed", zap.Error(err))
		}
		writeErrorJSON(w, http.StatusInternalServerError, "submission processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "submission stored",
		"documentId": receipt.DocumentID,
	})
}

func (h *IntakeHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if id == "" {
		writeErrorJSON(w, http.StatusBadRequest, "document id is required")
		return
	}

	record, ok := h.cache.Get(ctx, id)
	if !ok {
		var err error
		record, err = h.records.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				writeErrorJSON(w, http.StatusNotFound, "submission not found")
				return
			}
			if logger, ok := logging.GetFromContext(ctx); ok {
				logger.Error(ctx, "failed to read submission", zap.Error(err))
			}
			writeErrorJSON(w, http.StatusInternalServerError, "failed to read submission")
			return
		}
		h.cache.Set(ctx, id, record)
	}

	data, err := json.Marshal(record)
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "failed to serialize record")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// buildSubmission converts the parsed multipart form into the pipeline's
// input. File iteration order is field-name order so key collisions resolve
// deterministically.
func buildSubmission(r *http.Request) (*model.Submission, error) {
	form := r.MultipartForm

	fields, err := textFields(form.Value)
	if err != nil {
		return nil, err
	}

	fileFields := make([]string, 0, len(form.File))
	for name := range form.File {
		fileFields = append(fileFields, name)
	}
	sort.Strings(fileFields)

	var files []model.UploadedFile
	for _, name := range fileFields {
		for _, fh := range form.File[name] {
			fh := fh
			files = append(files, model.UploadedFile{
				FieldName:        name,
				OriginalFilename: fh.Filename,
				ContentType:      fh.Header.Get("Content-Type"),
				Size:             fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}

	return &model.Submission{Fields: fields, Files: files}, nil
}

// textFields supports both submission shapes: one JSON blob under the data
// field, or flat individual fields.
func textFields(values map[string][]string) (map[string]string, error) {
	if blob, ok := values[jsonBlobField]; ok && len(blob) > 0 {
		var payload map[string]any
		if err := json.Unmarshal([]byte(blob[0]), &payload); err != nil {
			return nil, fmt.Errorf("%w: malformed %s field: %w", errdefs.ErrValidation, jsonBlobField, err)
		}
		fields := make(map[string]string)
		flattenInto(fields, "", payload)
		return fields, nil
	}

	fields := make(map[string]string, len(values))
	for name, vals := range values {
		if len(vals) > 0 {
			fields[name] = vals[0]
		}
	}
	return fields, nil
}

// flattenInto lowers nested JSON objects to flat field names with "_" joins,
// matching the flat-field submission shape.
func flattenInto(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, nested := range v {
			name := key
			if prefix != "" {
				name = prefix + "_" + key
			}
			flattenInto(out, name, nested)
		}
	case string:
		out[prefix] = v
	case float64:
		out[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		out[prefix] = strconv.FormatBool(v)
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp, _ := json.Marshal(body)
	_, _ = w.Write(resp)
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp, _ := json.Marshal(map[string]any{"success": false, "error": message})
	_, _ = w.Write(resp)
}
