package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type PayrollHandler interface {
	// Cycles
	GenerateCycle(w http.ResponseWriter, r *http.Request)
	ListCycles(w http.ResponseWriter, r *http.Request)
	GetCycle(w http.ResponseWriter, r *http.Request)
	GetCycleSummary(w http.ResponseWriter, r *http.Request)
	DeleteCycle(w http.ResponseWriter, r *http.Request)
	SendToReview(w http.ResponseWriter, r *http.Request)
	MarkReadyToPay(w http.ResponseWriter, r *http.Request)
	FinalizeCycle(w http.ResponseWriter, r *http.Request)
	ExportRegister(w http.ResponseWriter, r *http.Request)

	// Slips
	ListSlips(w http.ResponseWriter, r *http.Request)
	GetSlip(w http.ResponseWriter, r *http.Request)
	RespondToSlip(w http.ResponseWriter, r *http.Request)
	EditSlip(w http.ResponseWriter, r *http.Request)
	DeleteSlip(w http.ResponseWriter, r *http.Request)
	DownloadSlipPDF(w http.ResponseWriter, r *http.Request)

	// Deduction rates
	GetDeductionRates(w http.ResponseWriter, r *http.Request)
	UpdateDeductionRates(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	payrollService payroll.PayrollService
}

func NewPayrollHandler(payrollService payroll.PayrollService) PayrollHandler {
	return &payrollHandlerImpl{payrollService: payrollService}
}

// ========== CYCLES ==========

func (h *payrollHandlerImpl) GenerateCycle(w http.ResponseWriter, r *http.Request) {
	var req payroll.GenerateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.GenerateCycle(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Payroll cycle generated", result)
}

func (h *payrollHandlerImpl) ListCycles(w http.ResponseWriter, r *http.Request) {
	var filter payroll.CycleFilter

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}
	if periodKey := r.URL.Query().Get("period_key"); periodKey != "" {
		filter.PeriodKey = &periodKey
	}
	if page := r.URL.Query().Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil {
			filter.Page = p
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	result, err := h.payrollService.ListCycles(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	totalPages := 0
	if result.Limit > 0 {
		totalPages = int((result.TotalCount + int64(result.Limit) - 1) / int64(result.Limit))
	}
	response.SuccessWithMeta(w, result.Data, &response.Meta{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalItems: result.TotalCount,
		TotalPages: totalPages,
	})
}

func (h *payrollHandlerImpl) GetCycle(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) GetCycleSummary(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.GetCycleSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) DeleteCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.payrollService.DeleteCycle(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll cycle deleted successfully", nil)
}

func (h *payrollHandlerImpl) SendToReview(w http.ResponseWriter, r *http.Request) {
	var req payroll.SendToReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.CycleID = chi.URLParam(r, "id")

	result, err := h.payrollService.SendToReview(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll cycle sent to review", result)
}

func (h *payrollHandlerImpl) MarkReadyToPay(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.MarkReadyToPay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll cycle is ready to pay", result)
}

func (h *payrollHandlerImpl) FinalizeCycle(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.FinalizeCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll cycle finalized", result)
}

func (h *payrollHandlerImpl) ExportRegister(w http.ResponseWriter, r *http.Request) {
	body, filename, err := h.payrollService.ExportCycleRegister(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Attachment(w, contentTypeXLSX, filename, body)
}

// ========== SLIPS ==========

func (h *payrollHandlerImpl) ListSlips(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.ListSlips(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) GetSlip(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.GetSlip(r.Context(), chi.URLParam(r, "slipId"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) RespondToSlip(w http.ResponseWriter, r *http.Request) {
	var req payroll.RespondSlipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.SlipID = chi.URLParam(r, "slipId")

	result, err := h.payrollService.RespondToSlip(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// EditSlip accepts either a JSON patch or a multipart form with the patch in
// the 'data' field and an optional 'proof' file.
func (h *payrollHandlerImpl) EditSlip(w http.ResponseWriter, r *http.Request) {
	var req payroll.EditSlipRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			slog.Error("Failed to parse multipart form", "error", err)
			response.BadRequest(w, "Failed to parse form data", nil)
			return
		}

		if dataJSON := r.FormValue("data"); dataJSON != "" {
			if err := decodeSlipPatch(strings.NewReader(dataJSON), &req); err != nil {
				writePatchDecodeError(w, err, "Invalid JSON in 'data' field")
				return
			}
		}

		file, fileHeader, err := r.FormFile("proof")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			slog.Error("Failed to get file from form", "error", err)
			response.BadRequest(w, "Invalid file upload", nil)
			return
		}
		if file != nil {
			defer file.Close()
			req.Proof = &payroll.ProofUpload{
				Filename: fileHeader.Filename,
				Content:  file,
			}
		}
	} else if err := decodeSlipPatch(r.Body, &req); err != nil {
		writePatchDecodeError(w, err, "Invalid request body")
		return
	}
	req.SlipID = chi.URLParam(r, "slipId")

	result, err := h.payrollService.EditSlip(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// derivedSlipFields are computed on every write and never accepted from clients.
var derivedSlipFields = map[string]struct{}{
	"total_income":       {},
	"total_deduction":    {},
	"net_total":          {},
	"deduction_snapshot": {},
}

type unknownFieldError struct {
	field string
}

func (e *unknownFieldError) Error() string {
	return "unknown field " + e.field
}

func decodeSlipPatch(body io.Reader, req *payroll.EditSlipRequest) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		// encoding/json has no typed error for unknown fields
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return &unknownFieldError{field: strings.Trim(name, `"`)}
		}
		return err
	}
	return nil
}

func writePatchDecodeError(w http.ResponseWriter, err error, message string) {
	var unknown *unknownFieldError
	if !errors.As(err, &unknown) {
		response.BadRequest(w, message, nil)
		return
	}
	if _, derived := derivedSlipFields[unknown.field]; derived {
		response.ValidationError(w, map[string]string{unknown.field: "is computed by the server and cannot be set"})
		return
	}
	response.ValidationError(w, map[string]string{unknown.field: "unknown field"})
}

func (h *payrollHandlerImpl) DeleteSlip(w http.ResponseWriter, r *http.Request) {
	if err := h.payrollService.DeleteSlip(r.Context(), chi.URLParam(r, "slipId")); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll slip deleted successfully", nil)
}

func (h *payrollHandlerImpl) DownloadSlipPDF(w http.ResponseWriter, r *http.Request) {
	body, filename, err := h.payrollService.RenderSlipPDF(r.Context(), chi.URLParam(r, "slipId"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Attachment(w, contentTypePDF, filename, body)
}

// ========== DEDUCTION RATES ==========

func (h *payrollHandlerImpl) GetDeductionRates(w http.ResponseWriter, r *http.Request) {
	result, err := h.payrollService.GetDeductionRates(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) UpdateDeductionRates(w http.ResponseWriter, r *http.Request) {
	var req payroll.UpdateDeductionRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.UpdateDeductionRates(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Deduction rates updated", result)
}
