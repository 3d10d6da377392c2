package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// VitalsUpdate carries proposed changes to the vitals sub-record. A nil field
// means the proposal says nothing about it.
type VitalsUpdate struct {
	PatientName          *string         `json:"patientName,omitempty"`
	PatientAge           *int            `json:"patientAge,omitempty"`
	PatientGender        *string         `json:"patientGender,omitempty"`
	Temperature          *Measurement    `json:"temperature,omitempty"`
	Weight               *Measurement    `json:"weight,omitempty"`
	BloodPressure        *BloodPressure  `json:"bloodPressure,omitempty"`
	CurrentStatus        *string         `json:"currentStatus,omitempty"`
	TriageDecision       *TriageDecision `json:"triageDecision,omitempty"`
	TriageReason         *string         `json:"triageReason,omitempty"`
	VitalsStageCompleted *bool           `json:"vitalsStageCompleted,omitempty"`
}

// Update is a partial record proposed for fusion. Nil pointers and nil
// slices are absent fields.
type Update struct {
	Vitals             *VitalsUpdate `json:"vitals,omitempty"`
	ChiefComplaint     *string       `json:"chiefComplaint,omitempty"`
	HPI                *string       `json:"hpi,omitempty"`
	FamilyHistory      *string       `json:"familyHistory,omitempty"`
	SocialHistory      *string       `json:"socialHistory,omitempty"`
	UCGRecommendations *string       `json:"ucgRecommendations,omitempty"`

	MedicalRecords     []string `json:"medicalRecords,omitempty"`
	Medications        []string `json:"medications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	PastMedicalHistory []string `json:"pastMedicalHistory,omitempty"`
	ReviewOfSystems    []string `json:"reviewOfSystems,omitempty"`

	RecordsCheckCompleted *bool `json:"recordsCheckCompleted,omitempty"`
	HistoryCheckCompleted *bool `json:"historyCheckCompleted,omitempty"`

	ClinicalHandover *Handover      `json:"clinicalHandover,omitempty"`
	BookingStatus    *BookingStatus `json:"bookingStatus,omitempty"`
	AppointmentDate  *string        `json:"appointmentDate,omitempty"`

	// CurrentAgent names the agent the caller wants active after the merge.
	CurrentAgent *string `json:"currentAgent,omitempty"`
}

// DecodeUpdate parses a proposed update. Every field is decoded on its own:
// a field of the wrong type is dropped and reported, the rest still apply.
func DecodeUpdate(data []byte) (Update, []string) {
	var issues []string
	d, ok := newFieldDecoder(data, "update", "", &issues)
	if !ok {
		return Update{}, issues
	}
	u := Update{
		ChiefComplaint:     d.str("chiefComplaint"),
		HPI:                d.str("hpi"),
		FamilyHistory:      d.str("familyHistory"),
		SocialHistory:      d.str("socialHistory"),
		UCGRecommendations: d.str("ucgRecommendations"),

		MedicalRecords:     d.strs("medicalRecords"),
		Medications:        d.strs("medications"),
		Allergies:          d.strs("allergies"),
		PastMedicalHistory: d.strs("pastMedicalHistory"),
		ReviewOfSystems:    d.strs("reviewOfSystems"),

		RecordsCheckCompleted: d.boolean("recordsCheckCompleted"),
		HistoryCheckCompleted: d.boolean("historyCheckCompleted"),
		AppointmentDate:       d.str("appointmentDate"),
		CurrentAgent:          d.str("currentAgent"),
	}
	if raw, ok := d.raw("vitals"); ok {
		if vd, ok := newFieldDecoder(raw, "vitals", "vitals.", &issues); ok {
			u.Vitals = vd.vitals()
		}
	}
	u.ClinicalHandover = d.handover()
	if s := d.str("bookingStatus"); s != nil {
		if st := BookingStatus(strings.TrimSpace(*s)); st.Valid() {
			u.BookingStatus = &st
		} else {
			d.reject("bookingStatus", "one of collecting, ready, booked")
		}
	}
	return u, issues
}

// DecodeRecord parses a full record, for example one read back from storage.
// Fields that fail to decode keep their session-start value and are reported.
func DecodeRecord(data []byte) (Record, []string) {
	var issues []string
	r := NewRecord()
	d, ok := newFieldDecoder(data, "record", "", &issues)
	if !ok {
		return r, issues
	}
	r.Vitals = nil
	if raw, ok := d.raw("vitals"); ok {
		if vd, ok := newFieldDecoder(raw, "vitals", "vitals.", &issues); ok {
			v := &Vitals{TriageDecision: TriagePending}
			applyVitals(v, vd.vitals())
			r.Vitals = v
		}
	}
	r.ChiefComplaint = d.str("chiefComplaint")
	r.HPI = d.str("hpi")
	r.FamilyHistory = d.str("familyHistory")
	r.SocialHistory = d.str("socialHistory")
	r.UCGRecommendations = d.str("ucgRecommendations")
	r.AppointmentDate = d.str("appointmentDate")

	for _, f := range []struct {
		key string
		dst *[]string
	}{
		{"medicalRecords", &r.MedicalRecords},
		{"medications", &r.Medications},
		{"allergies", &r.Allergies},
		{"pastMedicalHistory", &r.PastMedicalHistory},
		{"reviewOfSystems", &r.ReviewOfSystems},
	} {
		if v := d.strs(f.key); v != nil {
			*f.dst = union([]string{}, v)
		}
	}
	if b := d.boolean("recordsCheckCompleted"); b != nil {
		r.RecordsCheckCompleted = *b
	}
	if b := d.boolean("historyCheckCompleted"); b != nil {
		r.HistoryCheckCompleted = *b
	}
	r.ClinicalHandover = d.handover()
	if s := d.str("bookingStatus"); s != nil {
		if st := BookingStatus(strings.TrimSpace(*s)); st.Valid() {
			r.BookingStatus = st
		} else {
			d.reject("bookingStatus", "one of collecting, ready, booked")
		}
	}
	r.ActiveAgent = DetermineAgent(r)
	if s := d.str("activeAgent"); s != nil {
		if a, ok := ParseAgent(*s); ok {
			r.ActiveAgent = a
		} else {
			d.reject("activeAgent", "a known agent")
			r.ActiveAgent = NormalizeAgent(*s, r)
		}
	}
	return r, issues
}

type fieldDecoder struct {
	fields map[string]json.RawMessage
	prefix string
	issues *[]string
}

// newFieldDecoder reads data as a JSON object. name labels the object in
// the issue reported when it is not one; prefix is put before field keys.
func newFieldDecoder(data []byte, name, prefix string, issues *[]string) (*fieldDecoder, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		*issues = append(*issues, fmt.Sprintf("%s: expected object", name))
		return nil, false
	}
	return &fieldDecoder{fields: fields, prefix: prefix, issues: issues}, true
}

// raw returns the field's JSON, treating JSON null like a missing key.
func (d *fieldDecoder) raw(key string) (json.RawMessage, bool) {
	v, ok := d.fields[key]
	if !ok {
		return nil, false
	}
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (d *fieldDecoder) reject(key, want string) {
	*d.issues = append(*d.issues, fmt.Sprintf("%s%s: expected %s", d.prefix, key, want))
}

func (d *fieldDecoder) str(key string) *string {
	raw, ok := d.raw(key)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		d.reject(key, "string")
		return nil
	}
	return &s
}

func (d *fieldDecoder) strs(key string) []string {
	raw, ok := d.raw(key)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		d.reject(key, "array of strings")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			d.reject(key, "array of strings")
			continue
		}
		out = append(out, s)
	}
	return out
}

func (d *fieldDecoder) boolean(key string) *bool {
	raw, ok := d.raw(key)
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		d.reject(key, "boolean")
		return nil
	}
	return &b
}

func (d *fieldDecoder) integer(key string) *int {
	raw, ok := d.raw(key)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) {
		d.reject(key, "integer")
		return nil
	}
	n := int(f)
	return &n
}

func (d *fieldDecoder) object(key string, v any) bool {
	raw, ok := d.raw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		d.reject(key, "object")
		return false
	}
	return true
}

func (d *fieldDecoder) vitals() *VitalsUpdate {
	v := &VitalsUpdate{
		PatientName:          d.str("patientName"),
		PatientAge:           d.integer("patientAge"),
		PatientGender:        d.str("patientGender"),
		CurrentStatus:        d.str("currentStatus"),
		TriageReason:         d.str("triageReason"),
		VitalsStageCompleted: d.boolean("vitalsStageCompleted"),
	}
	v.Temperature = d.measurement("temperature")
	v.Weight = d.measurement("weight")
	var bp BloodPressure
	if d.object("bloodPressure", &bp) {
		if bp.empty() {
			d.reject("bloodPressure", "systolic and diastolic values")
		} else {
			v.BloodPressure = &bp
		}
	}
	if s := d.str("triageDecision"); s != nil {
		if td := TriageDecision(strings.TrimSpace(*s)); td.Valid() {
			v.TriageDecision = &td
		} else {
			d.reject("triageDecision", "one of pending, emergency, normal")
		}
	}
	return v
}

func (d *fieldDecoder) measurement(key string) *Measurement {
	var m Measurement
	if !d.object(key, &m) {
		return nil
	}
	if m.empty() {
		d.reject(key, "a value and unit")
		return nil
	}
	return &m
}

// handover drops an SBAR note with no text, reporting it.
func (d *fieldDecoder) handover() *Handover {
	var h Handover
	if !d.object("clinicalHandover", &h) {
		return nil
	}
	if h.Empty() {
		d.reject("clinicalHandover", "at least one SBAR section")
		return nil
	}
	return &h
}
