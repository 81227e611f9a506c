package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/service"

	"go.uber.org/zap"
)

type CheckInHandler struct {
	service *service.AdmissionService
	logger  *zap.Logger
}

func NewCheckInHandler(service *service.AdmissionService, logger *zap.Logger) *CheckInHandler {
	return &CheckInHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCheckIn serves both forms of the check-in endpoint: with
// checkOnly set it reports admission status, otherwise it commits.
func (h *CheckInHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode check-in request", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, models.ErrorResponse{
			Code:    models.CodeValidationError,
			Message: "Invalid request body",
		})
		return
	}

	if req.CheckOnly {
		h.handleCheckOnly(w, req)
		return
	}
	h.handleCommit(w, req)
}

func (h *CheckInHandler) handleCheckOnly(w http.ResponseWriter, req models.CheckInRequest) {
	status, err := h.service.CheckAdmission(req.Ref())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, models.CheckStatusResponse{
		AlreadyCheckedIn: status.AlreadyAdmitted,
		EmployeeID:       status.Subject.SubjectID,
		LastCheckInTime:  status.LastAdmittedAt,
		CooldownEndsAt:   status.CooldownEndsAt,
		EntityType:       status.Subject.EntityType,
	})
}

func (h *CheckInHandler) handleCommit(w http.ResponseWriter, req models.CheckInRequest) {
	result, err := h.service.Admit(req.Ref(), req.SourceType, req.GuestCount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if !result.Accepted {
		remaining := int64(0)
		if result.CooldownEndsAt != nil {
			remaining = int64(math.Ceil(time.Until(*result.CooldownEndsAt).Seconds()))
		}
		if remaining < 0 {
			remaining = 0
		}
		h.writeError(w, http.StatusConflict, models.ErrorResponse{
			Code:            models.CodeRestricted,
			Message:         fmt.Sprintf("Please wait %d more seconds before checking in again", remaining),
			EmployeeID:      result.Subject.SubjectID,
			LastCheckInTime: result.LastAdmittedAt,
			CooldownEndsAt:  result.CooldownEndsAt,
			EntityType:      result.Subject.EntityType,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, models.CheckInResponse{
		Success:    true,
		VisitLog:   result.Visit,
		Data:       &result.Subject,
		EntityType: result.Subject.EntityType,
	})
}

// HandleSearch answers roster queries; an empty query returns the full
// roster, which the kiosk uses to refresh its offline snapshot.
func (h *CheckInHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	subjects, err := h.service.Search(query)
	if err != nil {
		h.logger.Error("Search failed", zap.Error(err))
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	if subjects == nil {
		subjects = []models.Subject{}
	}
	h.writeJSON(w, http.StatusOK, subjects)
}

func (h *CheckInHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidSubjectRef):
		h.writeError(w, http.StatusBadRequest, models.ErrorResponse{
			Code:    models.CodeValidationError,
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrSubjectNotFound):
		h.writeError(w, http.StatusNotFound, models.ErrorResponse{
			Code:    models.CodeNotFound,
			Message: "Employee or contractor not found",
		})
	default:
		h.logger.Error("Check-in processing failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, models.ErrorResponse{
			Code:    "INTERNAL",
			Message: "Internal server error",
		})
	}
}

func (h *CheckInHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *CheckInHandler) writeError(w http.ResponseWriter, status int, body models.ErrorResponse) {
	h.writeJSON(w, status, body)
}
