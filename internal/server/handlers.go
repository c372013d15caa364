package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/ingest"
	"github.com/hyperjump/lookalike/internal/models"
	"github.com/hyperjump/lookalike/internal/storage"
)

const (
	healthTimeout   = 2 * time.Second
	maxVectorBody   = 4 << 20
	statusConnected = "Connected"
	statusDown      = "Disconnected"

	msgSearchFailed = "Search failed"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondAppError(w, msgSearchFailed, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	image, filename, err := s.readUpload(r)
	if err != nil {
		s.respondAppError(w, msgSearchFailed, err)
		return
	}
	s.logger.Debug("search request",
		zap.String("filename", filename),
		zap.Int("bytes", len(image)),
		zap.Int("limit", limit))

	response, err := s.engine.Search(r.Context(), &models.ImageQuery{Image: image, Filename: filename, Limit: limit})
	if err != nil {
		s.respondAppError(w, msgSearchFailed, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchVector(w http.ResponseWriter, r *http.Request) {
	var query models.VectorQuery
	if err := json.NewDecoder(io.LimitReader(r.Body, maxVectorBody)).Decode(&query); err != nil {
		s.respondAppError(w, "Vector search failed", fmt.Errorf("%w: invalid request body: %v", apperr.ErrInvalidRequest, err))
		return
	}
	response, err := s.engine.SearchVector(r.Context(), &query)
	if err != nil {
		s.respondAppError(w, "Vector search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleUpsertItems(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		s.respondError(w, http.StatusNotImplemented, "store is read-only")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	items, err := ingest.ReadItems(r.Body, s.config.Embedding.Dimensions)
	if err != nil {
		s.respondAppError(w, "Upsert failed", fmt.Errorf("%w: %w", apperr.ErrInvalidRequest, err))
		return
	}
	if err := s.writer.Upsert(r.Context(), items); err != nil {
		if errors.Is(err, apperr.ErrDimensionMismatch) || errors.Is(err, apperr.ErrInvalidItem) {
			err = fmt.Errorf("%w: %w", apperr.ErrInvalidRequest, err)
		}
		s.respondAppError(w, "Upsert failed", err)
		return
	}
	s.logger.Debug("items upserted", zap.Int("count", len(items)))
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"status": "upserted", "count": len(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	getter, ok := s.store.(storage.Getter)
	if !ok {
		s.respondError(w, http.StatusNotImplemented, "item lookup not supported by store")
		return
	}
	id := chi.URLParam(r, "id")
	item, err := getter.Get(r.Context(), id)
	if err != nil {
		s.respondAppError(w, "Get failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		s.respondError(w, http.StatusNotImplemented, "store is read-only")
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete item request", zap.String("id", id))
	if err := s.writer.Delete(r.Context(), id); err != nil {
		s.respondAppError(w, "Delete failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	storeStatus := statusConnected
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health: store ping failed", zap.Error(err))
		storeStatus = statusDown
	}
	s.respondJSON(w, http.StatusOK, &models.HealthResponse{
		Status:      "OK",
		StoreStatus: storeStatus,
		MongoStatus: storeStatus,
		StoreType:   s.store.Type(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Status(r.Context())
	if err != nil {
		s.logger.Error("status: count items failed", zap.Error(err))
		s.respondAppError(w, "Status failed", err)
		return
	}
	resp.Dimensions = s.config.Embedding.Dimensions
	if du, ok := s.store.(interface{ DiskUsage() (int64, error) }); ok {
		if n, err := du.DiskUsage(); err == nil {
			resp.DiskUsage = n
		}
	}
	if s.breaker != nil {
		resp.Breaker = s.breaker.State()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// readUpload returns the image from a multipart form field or a raw image body.
func (s *Server) readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing or invalid content type", apperr.ErrNoInputProvided)
	}
	switch {
	case mediaType == "multipart/form-data":
		file, header, err := r.FormFile(s.config.Server.UploadField)
		if err != nil {
			if isTooLarge(err) {
				return nil, "", err
			}
			return nil, "", fmt.Errorf("%w: no %q field in form", apperr.ErrNoInputProvided, s.config.Server.UploadField)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	case strings.HasPrefix(mediaType, "image/"), mediaType == "application/octet-stream":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", err
		}
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			filename = "upload"
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				filename += exts[0]
			}
		}
		return data, filename, nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported content type %s", apperr.ErrNoInputProvided, mediaType)
	}
}

// parseLimit reads k or limit from the query string. Absent means 0 (use the default).
func parseLimit(r *http.Request) (int, error) {
	q := r.URL.Query()
	v := q.Get("k")
	if v == "" {
		v = q.Get("limit")
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer, got %q", apperr.ErrInvalidRequest, v)
	}
	return n, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, &models.ErrorResponse{Error: message})
}

// respondAppError writes {error, code, details} with the status for err's class.
func (s *Server) respondAppError(w http.ResponseWriter, message string, err error) {
	if isTooLarge(err) {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, &models.ErrorResponse{
			Error:   "Upload too large",
			Code:    "too_large",
			Details: err.Error(),
		})
		return
	}
	status := apperr.HTTPStatus(err)
	if message == msgSearchFailed && errors.Is(err, apperr.ErrNoInputProvided) {
		message = "No image uploaded"
	}
	if status >= 500 {
		s.logger.Error(strings.ToLower(message), zap.String("code", apperr.Code(err)), zap.Error(err))
	}
	s.respondJSON(w, status, &models.ErrorResponse{
		Error:   message,
		Code:    apperr.Code(err),
		Details: err.Error(),
	})
}
