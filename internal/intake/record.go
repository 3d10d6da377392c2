package intake

import (
	"strings"
	"time"
)

type TriageDecision string

const (
	TriagePending   TriageDecision = "pending"
	TriageEmergency TriageDecision = "emergency"
	TriageNormal    TriageDecision = "normal"
)

func (d TriageDecision) Valid() bool {
	return d == TriagePending || d == TriageEmergency || d == TriageNormal
}

type BookingStatus string

const (
	BookingCollecting BookingStatus = "collecting"
	BookingReady      BookingStatus = "ready"
	BookingBooked     BookingStatus = "booked"
)

func (s BookingStatus) Valid() bool {
	return s.rank() >= 0
}

func (s BookingStatus) rank() int {
	switch s {
	case BookingCollecting:
		return 0
	case BookingReady:
		return 1
	case BookingBooked:
		return 2
	}
	return -1
}

type Measurement struct {
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
}

type BloodPressure struct {
	Systolic    int        `json:"systolic"`
	Diastolic   int        `json:"diastolic"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
}

type Vitals struct {
	PatientName          *string        `json:"patientName"`
	PatientAge           *int           `json:"patientAge"`
	PatientGender        *string        `json:"patientGender"`
	Temperature          *Measurement   `json:"temperature"`
	Weight               *Measurement   `json:"weight"`
	BloodPressure        *BloodPressure `json:"bloodPressure"`
	CurrentStatus        *string        `json:"currentStatus"`
	TriageDecision       TriageDecision `json:"triageDecision"`
	TriageReason         *string        `json:"triageReason"`
	VitalsStageCompleted bool           `json:"vitalsStageCompleted"`
}

func (m *Measurement) empty() bool {
	return m == nil || (m.Value == 0 && strings.TrimSpace(m.Unit) == "")
}

func (bp *BloodPressure) empty() bool {
	return bp == nil || (bp.Systolic == 0 && bp.Diastolic == 0)
}

// Handover is the SBAR note written at the end of intake.
type Handover struct {
	Situation      string `json:"situation"`
	Background     string `json:"background"`
	Assessment     string `json:"assessment"`
	Recommendation string `json:"recommendation"`
}

// Empty reports whether h carries no SBAR text. A nil note is empty.
func (h *Handover) Empty() bool {
	return h == nil || (strings.TrimSpace(h.Situation) == "" && strings.TrimSpace(h.Background) == "" &&
		strings.TrimSpace(h.Assessment) == "" && strings.TrimSpace(h.Recommendation) == "")
}

// Record is everything learned about the patient during one intake session.
type Record struct {
	Vitals             *Vitals `json:"vitals"`
	ChiefComplaint     *string `json:"chiefComplaint"`
	HPI                *string `json:"hpi"`
	FamilyHistory      *string `json:"familyHistory"`
	SocialHistory      *string `json:"socialHistory"`
	UCGRecommendations *string `json:"ucgRecommendations"`

	MedicalRecords     []string `json:"medicalRecords"`
	Medications        []string `json:"medications"`
	Allergies          []string `json:"allergies"`
	PastMedicalHistory []string `json:"pastMedicalHistory"`
	ReviewOfSystems    []string `json:"reviewOfSystems"`

	RecordsCheckCompleted bool `json:"recordsCheckCompleted"`
	HistoryCheckCompleted bool `json:"historyCheckCompleted"`

	ActiveAgent      Agent         `json:"activeAgent"`
	ClinicalHandover *Handover     `json:"clinicalHandover"`
	BookingStatus    BookingStatus `json:"bookingStatus"`
	AppointmentDate  *string       `json:"appointmentDate"`
}

// NewRecord returns the record a session starts with.
func NewRecord() Record {
	return Record{
		Vitals:             &Vitals{TriageDecision: TriagePending},
		MedicalRecords:     []string{},
		Medications:        []string{},
		Allergies:          []string{},
		PastMedicalHistory: []string{},
		ReviewOfSystems:    []string{},
		ActiveAgent:        AgentVitalsTriage,
		BookingStatus:      BookingCollecting,
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.Vitals = r.Vitals.clone()
	out.ChiefComplaint = cloneString(r.ChiefComplaint)
	out.HPI = cloneString(r.HPI)
	out.FamilyHistory = cloneString(r.FamilyHistory)
	out.SocialHistory = cloneString(r.SocialHistory)
	out.UCGRecommendations = cloneString(r.UCGRecommendations)
	out.MedicalRecords = cloneStrings(r.MedicalRecords)
	out.Medications = cloneStrings(r.Medications)
	out.Allergies = cloneStrings(r.Allergies)
	out.PastMedicalHistory = cloneStrings(r.PastMedicalHistory)
	out.ReviewOfSystems = cloneStrings(r.ReviewOfSystems)
	if r.ClinicalHandover != nil {
		h := *r.ClinicalHandover
		out.ClinicalHandover = &h
	}
	out.AppointmentDate = cloneString(r.AppointmentDate)
	return out
}

func (v *Vitals) clone() *Vitals {
	if v == nil {
		return nil
	}
	out := *v
	out.PatientName = cloneString(v.PatientName)
	out.PatientGender = cloneString(v.PatientGender)
	out.CurrentStatus = cloneString(v.CurrentStatus)
	out.TriageReason = cloneString(v.TriageReason)
	if v.PatientAge != nil {
		age := *v.PatientAge
		out.PatientAge = &age
	}
	out.Temperature = v.Temperature.clone()
	out.Weight = v.Weight.clone()
	if v.BloodPressure != nil {
		bp := *v.BloodPressure
		bp.CollectedAt = cloneTime(v.BloodPressure.CollectedAt)
		out.BloodPressure = &bp
	}
	return &out
}

func (m *Measurement) clone() *Measurement {
	if m == nil {
		return nil
	}
	out := *m
	out.CollectedAt = cloneTime(m.CollectedAt)
	return &out
}

// VitalsCompleted reports whether the vitals gate has been closed.
func (r Record) VitalsCompleted() bool {
	return r.Vitals != nil && r.Vitals.VitalsStageCompleted
}

func (r Record) hasHistorySignal() bool {
	return len(r.Medications) > 0 || len(r.Allergies) > 0 || len(r.PastMedicalHistory) > 0
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
