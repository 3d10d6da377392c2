package consultation

import (
	"time"

	"github.com/google/uuid"

	"medical-intake-agent/internal/intake"
)

type Message struct {
	Role      string       `json:"role"` // "user" or "assistant"
	Content   string       `json:"content"`
	Agent     intake.Agent `json:"agent,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Consultation is one intake session: the conversation so far and the
// medical record built from it.
type Consultation struct {
	ID        uuid.UUID     `json:"id"`
	PatientID uuid.UUID     `json:"patient_id"`
	History   []Message     `json:"history"`
	Record    intake.Record `json:"record"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Proposal is what a specialist returns for one turn: the text shown to the
// patient and the record changes it wants to make.
type Proposal struct {
	Reply  string
	Update intake.Update
	Issues []string
}

type TurnRequest struct {
	ConsultationID uuid.UUID
	TurnID         string
	Text           string
}

type TurnResult struct {
	ConsultationID uuid.UUID     `json:"consultation_id"`
	TurnID         string        `json:"turn_id,omitempty"`
	Reply          string        `json:"reply"`
	Agent          intake.Agent  `json:"agent"`
	Stage          intake.Stage  `json:"stage"`
	Completeness   int           `json:"completeness"`
	Record         intake.Record `json:"record"`
	Violations     []string      `json:"violations,omitempty"`
	// Degraded is set when the specialist could not answer and the record
	// was left unchanged.
	Degraded bool `json:"degraded,omitempty"`
}

type Snapshot struct {
	Consultation *Consultation `json:"consultation"`
	Agent        intake.Agent  `json:"agent"`
	Stage        intake.Stage  `json:"stage"`
	Completeness int           `json:"completeness"`
}
