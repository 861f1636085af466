package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/config"
	"oscheck/internal/pipeline"
	"oscheck/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload parses a multipart request and returns the "file" part.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	maxBytes := int64(s.cfg.UploadMaxMB) << 20
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("missing file")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, content, nil
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (pipeline.DocumentInput, error) {
	name, content, err := s.readUpload(w, r)
	if err != nil {
		return pipeline.DocumentInput{}, err
	}
	kind := pipeline.KindFromFilename(name)
	if t := r.FormValue("type"); t != "" {
		if kind, err = pipeline.ParseDocumentKind(t); err != nil {
			return pipeline.DocumentInput{}, err
		}
	}
	if kind == "" {
		return pipeline.DocumentInput{}, fmt.Errorf("unsupported document type: %s", name)
	}
	return pipeline.DocumentInput{Name: name, Kind: kind, Content: content}, nil
}

func (s *Server) handleImportSheet(w http.ResponseWriter, r *http.Request) {
	filename, content, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = filename
	}
	sheet, err := s.imports.ImportXLSX(name, content, r.FormValue("sheet"))
	if err != nil {
		s.logger.Warn("sheet import failed", zap.String("file", filename), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, sheet)
}

type googleSheetRequest struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
	Name          string `json:"name"`
}

func (s *Server) handleImportGoogleSheet(w http.ResponseWriter, r *http.Request) {
	var req googleSheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SpreadsheetID) == "" {
		s.respondError(w, http.StatusBadRequest, "spreadsheet_id is required")
		return
	}
	sheet, err := s.imports.ImportGoogleSheet(r.Context(), req.SpreadsheetID, req.Range, req.Name)
	if err != nil {
		s.logger.Error("google sheet import failed", zap.String("spreadsheet_id", req.SpreadsheetID), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, sheet)
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := s.db.ListSheets()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sheets)
}

func (s *Server) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	sheet, table, err := s.db.SheetTable(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sheet": sheet, "rows": table.Rows})
}

func (s *Server) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteSheet(chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	input, err := s.readDocument(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := pipeline.ExtractDocument(input)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	input, err := s.readDocument(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var mapping internal.ColumnMapping
	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		if mapping, err = config.ParseColumnMapping([]byte(raw)); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := s.comparisons.CompareDocument(r.Context(), input, r.FormValue("sheet_id"), mapping)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNoSheet):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, pipeline.ErrUnreadableDocument):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"comparison": res.Comparison,
		"record":     res.Document.Record,
	})
}

func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	comparisons, err := s.db.ListComparisons(r.URL.Query().Get("sheet_id"), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, comparisons)
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.db.GetComparison(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cmp == nil {
		s.respondError(w, http.StatusNotFound, "comparison not found")
		return
	}
	s.respondJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleDeleteComparison(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteComparison(chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
