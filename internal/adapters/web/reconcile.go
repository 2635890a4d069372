package web

import (
	"net/http"
	"strconv"

	"invoice-reconciler/internal/app"

	"github.com/go-chi/chi/v5"
)

// apiMatch handles POST /api/match: a dry-run evaluation over a supplied order
// and candidates.
func (h *Handler) apiMatch(w http.ResponseWriter, r *http.Request) {
	var req app.MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := h.svc.EvaluateMatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, reportStatus(report.Failure), report)
}

// apiReconcileOrder handles POST /api/companies/{code}/orders/{orderNumber}/reconcile.
// ?dry_run=true builds without persisting.
func (h *Handler) apiReconcileOrder(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, "dry_run must be a boolean", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		dryRun = b
	}

	if claims := authFromContext(r.Context()); claims != nil {
		log := requestLogger(r)
		log.Info().Str("subject", claims.Subject).Str("company", companyCode(r)).
			Str("order_number", chi.URLParam(r, "orderNumber")).Bool("dry_run", dryRun).Msg("reconcile requested")
	}

	result, err := h.svc.ReconcileOrder(r.Context(), app.ReconcileRequest{
		CompanyCode: companyCode(r),
		OrderNumber: chi.URLParam(r, "orderNumber"),
		DryRun:      dryRun,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := reportStatus(result.Failure)
	if status == http.StatusOK && !result.DryRun {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, result)
}

// apiListAPRecords handles GET /api/companies/{code}/ap-records?limit=N.
func (h *Handler) apiListAPRecords(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, "limit must be between 1 and 500", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		limit = n
	}

	result, err := h.svc.ListAPRecords(r.Context(), companyCode(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiGetAPRecord handles GET /api/companies/{code}/ap-records/{id}.
func (h *Handler) apiGetAPRecord(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetAPRecord(r.Context(), companyCode(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
