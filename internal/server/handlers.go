package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/service"
	"github.com/tomasbielik/precedent/internal/store"
)

type submitRequest struct {
	Query string `json:"query"`
}

type researchPayload struct {
	models.Research
	Status string `json:"status"`
}

type listMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

type listResponse struct {
	Data []researchPayload `json:"data"`
	Meta listMeta          `json:"meta"`
}

type errorPayload struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func toPayload(research *models.Research) researchPayload {
	return researchPayload{Research: *research, Status: research.Status()}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	createdBy := strings.TrimSpace(r.Header.Get("X-User-ID"))

	research, err := s.research.Submit(r.Context(), req.Query, createdBy)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			payload := errorPayload{RequestID: GetRequestID(r.Context())}
			payload.Error.Code = "validation_failed"
			payload.Error.Message = "the request is invalid"
			payload.Error.Fields = verr.Fields
			writeJSON(w, http.StatusUnprocessableEntity, payload)
			return
		}
		s.logger.Error("submit failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not create research")
		return
	}

	writeJSON(w, http.StatusCreated, toPayload(research))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", service.DefaultPerPage)

	researches, total, err := s.research.List(r.Context(), page, perPage)
	if err != nil {
		s.logger.Error("list researches failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not list researches")
		return
	}

	if perPage < 1 {
		perPage = service.DefaultPerPage
	}
	if perPage > service.MaxPerPage {
		perPage = service.MaxPerPage
	}
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	data := make([]researchPayload, len(researches))
	for i := range researches {
		data[i] = toPayload(&researches[i])
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data: data,
		Meta: listMeta{
			CurrentPage: max(page, 1),
			PerPage:     perPage,
			LastPage:    lastPage,
			Total:       total,
		},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	research, err := s.research.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "research not found")
			return
		}
		s.logger.Error("get research failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not load research")
		return
	}
	writeJSON(w, http.StatusOK, toPayload(research))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.research.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "research not found")
			return
		}
		s.logger.Error("delete research failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not delete research")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
