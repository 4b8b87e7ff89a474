package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/export"
	"magiainterna/backend/internal/service"
	"magiainterna/backend/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	year, err := parseIntParam(r, "year")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	dashboard, err := a.service.Dashboard(r.Context(), year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleProfit(w http.ResponseWriter, r *http.Request) {
	year, err := parseIntParam(r, "year")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	month, err := parseIntParam(r, "month")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	report, err := a.service.ProfitReport(r.Context(), service.ProfitQuery{
		Period: q.Get("period"),
		Year:   year,
		Month:  month,
		From:   q.Get("from"),
		To:     q.Get("to"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	case "csv":
		body, err := export.ProfitCSV(report)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", profitFilename(report, "csv"), body)
	case "xlsx":
		body, err := export.ProfitXLSX(report)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, xlsxContentType, profitFilename(report, "xlsx"), body)
	default:
		a.fail(w, r, fmt.Errorf("%w: format must be json, csv or xlsx", store.ErrInvalid))
	}
}

func (a *API) handleCategoryUnits(w http.ResponseWriter, r *http.Request) {
	year, err := parseIntParam(r, "year")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.service.CategoryUnits(r.Context(), year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shares, err := a.service.PaymentShare(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": shares})
}

func (a *API) handleBirthdays(w http.ResponseWriter, r *http.Request) {
	overview, err := a.service.Birthdays(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) handlePromotionTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": a.service.EmailTemplates()})
}

func (a *API) handlePromotionPreview(w http.ResponseWriter, r *http.Request) {
	var req domain.PromotionPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	preview, err := a.service.PreviewPromotion(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handlePromotionRecipients(w http.ResponseWriter, r *http.Request) {
	var req domain.PromotionRecipientsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipients, err := a.service.PromotionRecipients(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipients)
}

func profitFilename(report domain.ProfitReport, ext string) string {
	return fmt.Sprintf("ganancias-%s-%s-%s.%s", report.Period, report.From, report.To, ext)
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
