package http

import (
	"net/http"
	"strings"

	"conti/internal/log"
)

func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form or file too large"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing 'file' form field"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "only .csv files are accepted"})
		return
	}

	res, err := s.ingest.Import(r.Context(), header.Filename, file)
	if err != nil {
		// A parse or validation failure leaves the stored data untouched.
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Statement uploaded",
		log.FieldFilename, header.Filename,
		log.FieldRowCount, res.Inserted)

	writeJSON(w, http.StatusOK, map[string]any{
		"filename":            header.Filename,
		"inserted":            res.Inserted,
		"auto_categorized":    res.AutoCategorized,
		"has_category_column": res.HasCategoryColumn,
	})
}

func (s *Server) handleLastFilename(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"filename": s.ingest.LastFilename()})
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.ClearData(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Stored transactions cleared")
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
