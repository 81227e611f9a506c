package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"canteenhq/canteen-checkin/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the admission backend
type APIClient struct {
	baseURL    string
	kioskID    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, kioskID string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		kioskID: kioskID,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CheckAdmission issues the check-only admission query: no side effects,
// reports whether the subject is already inside the cooldown window.
func (c *APIClient) CheckAdmission(ref models.SubjectRef) (*models.CheckStatusResponse, error) {
	req := models.CheckInRequest{
		QRCodeData:   ref.QRPayload,
		EmployeeID:   ref.EmployeeID,
		ContractorID: ref.ContractorID,
		CheckOnly:    true,
	}

	var status models.CheckStatusResponse
	if err := c.postCheckIn(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Commit performs the real check-in call
func (c *APIClient) Commit(ref models.SubjectRef, sourceType string, guestCount int) (*models.CheckInResponse, error) {
	req := models.CheckInRequest{
		QRCodeData:   ref.QRPayload,
		EmployeeID:   ref.EmployeeID,
		ContractorID: ref.ContractorID,
		SourceType:   sourceType,
		GuestCount:   guestCount,
	}

	var resp models.CheckInResponse
	if err := c.postCheckIn(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) postCheckIn(reqBody models.CheckInRequest, out interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/checkin", c.baseURL)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.kioskID != "" {
		req.Header.Set("X-Kiosk-ID", c.kioskID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Check-in request failed at transport level",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	return c.classifyError(resp.StatusCode, body)
}

// classifyError translates a non-2xx response into a typed error using
// the structured code carried in the body.
func (c *APIClient) classifyError(statusCode int, body []byte) error {
	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &BackendError{
			Message:    fmt.Sprintf("backend returned status %d: %s", statusCode, string(body)),
			StatusCode: statusCode,
		}
	}

	switch errResp.Code {
	case models.CodeRestricted:
		return &RestrictedError{
			Message:         errResp.Message,
			EmployeeID:      errResp.EmployeeID,
			LastCheckInTime: errResp.LastCheckInTime,
			CooldownEndsAt:  errResp.CooldownEndsAt,
			EntityType:      errResp.EntityType,
		}
	case models.CodeNotFound:
		return &NotFoundError{Message: errResp.Message}
	case models.CodeValidationError:
		return &ValidationError{Message: errResp.Message}
	default:
		c.logger.Error("Backend error",
			zap.Int("status_code", statusCode),
			zap.String("response", string(body)),
		)
		return &BackendError{
			Message:    fmt.Sprintf("backend returned status %d: %s", statusCode, errResp.Message),
			StatusCode: statusCode,
		}
	}
}

// SearchSubjects queries the server-side roster. An empty query returns
// the full roster and is how the offline snapshot gets refreshed.
func (c *APIClient) SearchSubjects(query string) ([]models.Subject, error) {
	endpoint := fmt.Sprintf("%s/api/v1/search?query=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.kioskID != "" {
		req.Header.Set("X-Kiosk-ID", c.kioskID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp.StatusCode, body)
	}

	var subjects []models.Subject
	if err := json.Unmarshal(body, &subjects); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return subjects, nil
}

// HealthCheck checks if the backend is reachable
func (c *APIClient) HealthCheck() error {
	endpoint := fmt.Sprintf("%s/health", c.baseURL)
	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
