package consultation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-intake-agent/internal/intake"
)

type Handler struct {
	svc    Service
	logger zerolog.Logger
}

func NewHandler(svc Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type CreateConsultationRequest struct {
	PatientID string `json:"patient_id"`
}

type TurnInputRequest struct {
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

type BookingRequest struct {
	AppointmentDate string `json:"appointment_date"`
}

type stageInfo struct {
	Agent intake.Agent `json:"agent"`
	Stage intake.Stage `json:"stage"`
}

func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req CreateConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	c, err := h.svc.CreateConsultation(r.Context(), pid)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"consultation_id": c.ID.String(),
		"agent":           c.Record.ActiveAgent,
		"stage":           intake.AgentToStage(c.Record.ActiveAgent),
	})
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.consultationID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.GetConsultation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.consultationID(w, r)
	if !ok {
		return
	}
	var req TurnInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.TurnID == "" {
		req.TurnID = r.Header.Get("Idempotency-Key")
	}

	res, err := h.svc.ProcessTurn(r.Context(), TurnRequest{
		ConsultationID: id,
		TurnID:         req.TurnID,
		Text:           req.Text,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.consultationID(w, r)
	if !ok {
		return
	}
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppointmentDate == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	snap, err := h.svc.BookAppointment(r.Context(), id, req.AppointmentDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	agents := intake.Agents()
	out := make([]stageInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, stageInfo{Agent: a, Stage: intake.AgentToStage(a)})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) consultationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Consultation not found", http.StatusNotFound)
	case errors.Is(err, ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSessionBusy), errors.Is(err, ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "Processing failed", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/consultations", h.CreateConsultation)
	r.Get("/consultations/{id}", h.GetConsultation)
	r.Post("/consultations/{id}/turns", h.HandleTurn)
	r.Post("/consultations/{id}/booking", h.BookAppointment)
	r.Get("/stages", h.ListStages)
}
