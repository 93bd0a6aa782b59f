package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/engine"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

// Coordinator is the write side: every status change goes through it.
type Coordinator interface {
	CreateToken(ctx context.Context, input engine.CreateTokenInput) (models.Token, error)
	CallNext(ctx context.Context, doctorID string) (models.Token, error)
	StartConsultation(ctx context.Context, tokenID string) (models.Token, error)
	EndConsultation(ctx context.Context, tokenID string) (models.Token, error)
	CancelConsultation(ctx context.Context, tokenID string) (models.Token, error)
	MarkNoShow(ctx context.Context, tokenID string) (models.Token, error)
	Skip(ctx context.Context, tokenID string) (models.Token, error)
	CancelWaitingToken(ctx context.Context, tokenID string) (models.Token, error)
	ChangePriority(ctx context.Context, tokenID, priority string) (models.Token, error)
}

type Queries interface {
	LiveBoard(ctx context.Context) ([]models.DoctorQueueView, error)
	QueueByDoctor(ctx context.Context, doctorID string) (models.DoctorQueueView, error)
	QueueByDepartment(ctx context.Context, departmentID string) ([]models.DoctorQueueView, error)
	TokenStatus(ctx context.Context, tokenNumber string) (models.TokenView, error)
	TokenByID(ctx context.Context, tokenID string) (models.TokenView, error)
	ActiveConsultations(ctx context.Context) ([]models.TokenView, error)
	PatientTokens(ctx context.Context, patientID string) ([]models.TokenView, error)
	Dashboard(ctx context.Context, doctorID string) (models.DashboardStats, error)
}

type EventLister interface {
	ListTokenEvents(ctx context.Context, tokenID string) ([]store.TokenEvent, error)
}

type Handler struct {
	coordinator Coordinator
	queries     Queries
	events      EventLister
	staff       store.StaffStore
	limiter     *RateLimiter
	validate    *validator.Validate
}

type createTokenRequest struct {
	PatientID    string `json:"patient_id" validate:"required,max=64"`
	DepartmentID string `json:"department_id" validate:"required,max=64"`
	DoctorID     string `json:"doctor_id" validate:"omitempty,max=64"`
	Priority     string `json:"priority" validate:"omitempty,max=32"`
	Notes        string `json:"notes" validate:"max=500"`
}

type changePriorityRequest struct {
	Priority string `json:"priority" validate:"required,max=32"`
}

type tokenAudit struct {
	Events      []store.TokenEvent `json:"events"`
	ChainValid  bool               `json:"chain_valid"`
	BrokenAtSeq int                `json:"broken_at_seq,omitempty"`
}

type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// errorEnvelope is envelope with a null data field plus a machine-readable
// code, so clients parse one shape for every response.
type errorEnvelope struct {
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// NewHandler wires the routes. limiter may be nil; when set, staff requests
// are also limited per authenticated user.
func NewHandler(coordinator Coordinator, queries Queries, events EventLister, staff store.StaffStore, limiter *RateLimiter) *Handler {
	return &Handler{
		coordinator: coordinator,
		queries:     queries,
		events:      events,
		staff:       staff,
		limiter:     limiter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", expvar.Handler())

	mux.HandleFunc("POST /api/tokens", h.handleCreateToken)
	mux.HandleFunc("GET /api/tokens/number/{tokenNumber}", h.handleTokenByNumber)
	mux.HandleFunc("POST /api/tokens/{id}/cancel", h.handlePatientCancel)
	mux.HandleFunc("GET /api/queues", h.handleLiveBoard)
	mux.HandleFunc("GET /api/queues/doctors/{doctorId}", h.handleDoctorQueue)
	mux.HandleFunc("GET /api/queues/departments/{departmentId}", h.handleDepartmentQueue)
	mux.HandleFunc("GET /api/patients/{patientId}/tokens", h.handlePatientTokens)

	mux.Handle("GET /api/staff/tokens/{id}/events", h.requireStaff(h.handleTokenEvents))
	mux.Handle("POST /api/staff/doctors/{doctorId}/call-next", h.requireStaff(h.handleCallNext))
	mux.Handle("POST /api/staff/tokens/{id}/priority", h.requireStaff(h.handleChangePriority))
	mux.Handle("POST /api/staff/tokens/{id}/{action}", h.requireStaff(h.handleTokenAction))
	mux.Handle("GET /api/staff/dashboard", h.requireStaff(h.handleDashboard))
	mux.Handle("GET /api/staff/consultations/active", h.requireStaff(h.handleActiveConsultations))
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	token, err := h.coordinator.CreateToken(r.Context(), engine.CreateTokenInput{
		PatientID:    strings.TrimSpace(req.PatientID),
		DepartmentID: strings.TrimSpace(req.DepartmentID),
		DoctorID:     strings.TrimSpace(req.DoctorID),
		Priority:     req.Priority,
		Notes:        req.Notes,
		CreatedBy:    h.optionalStaff(r),
	})
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	view, err := h.queries.TokenByID(r.Context(), token.TokenID)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: view, Message: "token generated"})
}

func (h *Handler) handleTokenByNumber(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.TokenStatus(r.Context(), r.PathValue("tokenNumber"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: view})
}

func (h *Handler) handlePatientCancel(w http.ResponseWriter, r *http.Request) {
	token, err := h.coordinator.CancelWaitingToken(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: token, Message: "token cancelled"})
}

func (h *Handler) handleLiveBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.queries.LiveBoard(r.Context())
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if board == nil {
		board = []models.DoctorQueueView{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: board})
}

func (h *Handler) handleDoctorQueue(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.QueueByDoctor(r.Context(), r.PathValue("doctorId"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: view})
}

func (h *Handler) handleDepartmentQueue(w http.ResponseWriter, r *http.Request) {
	views, err := h.queries.QueueByDepartment(r.Context(), r.PathValue("departmentId"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: views})
}

func (h *Handler) handlePatientTokens(w http.ResponseWriter, r *http.Request) {
	views, err := h.queries.PatientTokens(r.Context(), r.PathValue("patientId"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: views})
}

func (h *Handler) handleTokenEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListTokenEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	broken := store.VerifyTokenEvents(events)
	if broken != 0 {
		log.Printf("audit chain broken token=%s seq=%d", r.PathValue("id"), broken)
	}
	writeJSON(w, http.StatusOK, envelope{Data: tokenAudit{Events: events, ChainValid: broken == 0, BrokenAtSeq: broken}})
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	token, err := h.coordinator.CallNext(r.Context(), r.PathValue("doctorId"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	log.Printf("staff action user=%s action=call-next doctor=%s token=%s", staffUser(r.Context()), token.DoctorID, token.TokenNumber)
	writeJSON(w, http.StatusOK, envelope{Data: token, Message: "next patient called"})
}

var tokenActions = map[string]struct {
	run     func(Coordinator, context.Context, string) (models.Token, error)
	message string
}{
	"start":   {Coordinator.StartConsultation, "consultation started"},
	"end":     {Coordinator.EndConsultation, "consultation completed"},
	"cancel":  {Coordinator.CancelConsultation, "consultation cancelled"},
	"no-show": {Coordinator.MarkNoShow, "marked as no-show"},
	"skip":    {Coordinator.Skip, "token skipped"},
}

func (h *Handler) handleTokenAction(w http.ResponseWriter, r *http.Request) {
	action, ok := tokenActions[r.PathValue("action")]
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown action")
		return
	}
	token, err := action.run(h.coordinator, r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	log.Printf("staff action user=%s action=%s token=%s status=%s", staffUser(r.Context()), r.PathValue("action"), token.TokenNumber, token.Status)
	writeJSON(w, http.StatusOK, envelope{Data: token, Message: action.message})
}

func (h *Handler) handleChangePriority(w http.ResponseWriter, r *http.Request) {
	var req changePriorityRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	token, err := h.coordinator.ChangePriority(r.Context(), r.PathValue("id"), req.Priority)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: token, Message: "priority updated"})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Dashboard(r.Context(), strings.TrimSpace(r.URL.Query().Get("doctor_id")))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: stats})
}

func (h *Handler) handleActiveConsultations(w http.ResponseWriter, r *http.Request) {
	views, err := h.queries.ActiveConsultations(r.Context())
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: views})
}

// decodeRequest rejects unknown fields and runs struct validation.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "validation_error", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid request payload"
	}
	parts := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, store.ErrDoctorBusy):
		return http.StatusConflict, "doctor_busy", "doctor already has an active consultation"
	case errors.Is(err, store.ErrEmptyQueue):
		return http.StatusConflict, "queue_empty", "no patients waiting in queue"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusInternalServerError, "invalid_state", "queue state is inconsistent"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
