package server

import (
	"encoding/json"
	"net/http"

	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/service"

	"go.uber.org/zap"
)

// CheckInRequest is the request body from the scanner UI
type CheckInRequest struct {
	QRCodeData   string `json:"qrCodeData,omitempty"`
	EmployeeID   string `json:"employeeId,omitempty"`
	ContractorID string `json:"contractorId,omitempty"`
	SourceType   string `json:"sourceType,omitempty"`
	GuestCount   int    `json:"guestCount,omitempty"`
}

// KioskServer handles HTTP requests from the scanner UI running next to
// the kiosk process.
type KioskServer struct {
	checkIn *service.CheckInClient
	logger  *zap.Logger
}

// NewKioskServer creates a new kiosk server
func NewKioskServer(checkIn *service.CheckInClient, logger *zap.Logger) *KioskServer {
	return &KioskServer{
		checkIn: checkIn,
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler
func (s *KioskServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The UI is served from a different local origin
	s.setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/v1/checkin":
		if r.Method == http.MethodPost {
			s.handleCheckIn(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/sync":
		if r.Method == http.MethodPost {
			s.handleSync(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/status":
		if r.Method == http.MethodGet {
			s.handleStatus(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/search":
		if r.Method == http.MethodGet {
			s.handleSearch(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *KioskServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleCheckIn runs one check-in attempt and renders its outcome. The
// outcome kind tells the UI which screen to show; this endpoint never
// returns an error status for restriction or queueing.
func (s *KioskServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Failed to decode check-in request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome := s.checkIn.CheckIn(service.Request{
		Ref: models.SubjectRef{
			QRPayload:    req.QRCodeData,
			EmployeeID:   req.EmployeeID,
			ContractorID: req.ContractorID,
		},
		SourceType: req.SourceType,
		GuestCount: req.GuestCount,
	})

	s.writeJSON(w, http.StatusOK, outcome)
}

// handleSync triggers a manual reconciliation pass
func (s *KioskServer) handleSync(w http.ResponseWriter, _ *http.Request) {
	report := s.checkIn.SyncQueue()
	s.writeJSON(w, http.StatusOK, report)
}

func (s *KioskServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.checkIn.Status())
}

func (s *KioskServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	subjects := s.checkIn.Search(query)
	if subjects == nil {
		subjects = []models.Subject{}
	}
	s.writeJSON(w, http.StatusOK, subjects)
}

func (s *KioskServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *KioskServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
