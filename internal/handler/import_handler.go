package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxUploadBytes caps one CSV upload (form data included).
const maxUploadBytes = 16 << 20 // 16 MiB

// ============================================================
// CSV imports
// ============================================================

// createImportHandler accepts a multipart form with a "file" part and an
// optional "mapping" part holding the column mapping as JSON. Without a
// mapping the canonical column names are assumed.
func createImportHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/imports")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "expected multipart form data with a file part")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file part is required")
			return
		}
		defer file.Close()
		span.SetAttributes(attribute.String("import.filename", header.Filename))

		mapping := domain.ColumnMapping{Date: "date", Amount: "amount"}
		if raw := r.FormValue("mapping"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
				writeError(w, http.StatusBadRequest, "invalid mapping JSON")
				return
			}
		}

		imp, err := svc.CreateImport(ctx, UserIDFromContext(ctx), header.Filename, mapping, file)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, imp)
	}
}

func listImportsHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/imports")
		defer span.End()

		imports, err := svc.ListImports(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if imports == nil {
			imports = []domain.Import{}
		}

		writeJSON(w, http.StatusOK, imports)
	}
}

func getImportHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/imports/{importId}")
		defer span.End()

		importID := chi.URLParam(r, "importId")
		span.SetAttributes(attribute.String("import.id", importID))

		imp, err := svc.GetImport(ctx, UserIDFromContext(ctx), importID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, imp)
	}
}

func getImportRowsHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/imports/{importId}/rows")
		defer span.End()

		importID := chi.URLParam(r, "importId")
		span.SetAttributes(attribute.String("import.id", importID))

		rows, err := svc.GetImportRows(ctx, UserIDFromContext(ctx), importID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if rows == nil {
			rows = []domain.ImportRow{}
		}

		writeJSON(w, http.StatusOK, rows)
	}
}
