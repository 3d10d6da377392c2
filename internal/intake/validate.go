package intake

import (
	"fmt"
	"strings"
)

type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// ValidateMedicalData applies DefaultPolicy.
func ValidateMedicalData(r Record, allowOverride bool) ValidationResult {
	return DefaultPolicy.Validate(r, allowOverride)
}

// Validate reports consistency problems in r. It is diagnostic only: callers
// log the violations and carry on. allowOverride skips the routing check for
// records whose agent was forced by the caller.
func (p Policy) Validate(r Record, allowOverride bool) ValidationResult {
	var v []string

	if !r.ActiveAgent.Valid() {
		v = append(v, fmt.Sprintf("activeAgent %q is not a known agent", r.ActiveAgent))
	} else if !allowOverride {
		if want := p.DetermineAgent(r); want != r.ActiveAgent {
			v = append(v, fmt.Sprintf("activeAgent is %s but routing selects %s", r.ActiveAgent, want))
		}
	}

	if !r.BookingStatus.Valid() {
		v = append(v, fmt.Sprintf("bookingStatus %q is not a known status", r.BookingStatus))
	}
	if r.BookingStatus == BookingReady {
		if !r.VitalsCompleted() {
			v = append(v, "bookingStatus is ready but vitals are not completed")
		}
		if !present(r.ChiefComplaint) {
			v = append(v, "bookingStatus is ready but chief complaint is missing")
		}
		if !p.hpiSufficient(r.HPI) {
			v = append(v, fmt.Sprintf("bookingStatus is ready but hpi is shorter than %d characters", p.MinHPILength))
		}
		if !r.RecordsCheckCompleted {
			v = append(v, "bookingStatus is ready but records check is not completed")
		}
	}

	if r.ChiefComplaint != nil && *r.ChiefComplaint != "" && strings.TrimSpace(*r.ChiefComplaint) == "" {
		v = append(v, "chiefComplaint is blank")
	}
	for _, f := range []struct {
		name  string
		items []string
	}{
		{"medicalRecords", r.MedicalRecords},
		{"medications", r.Medications},
		{"allergies", r.Allergies},
		{"pastMedicalHistory", r.PastMedicalHistory},
		{"reviewOfSystems", r.ReviewOfSystems},
	} {
		v = append(v, checkSet(f.name, f.items)...)
	}

	if vit := r.Vitals; vit != nil {
		if !vit.TriageDecision.Valid() {
			v = append(v, fmt.Sprintf("vitals.triageDecision %q is not a known decision", vit.TriageDecision))
		}
		if vit.PatientAge != nil && *vit.PatientAge < 0 {
			v = append(v, "vitals.patientAge is negative")
		}
		if vit.Temperature != nil && vit.Temperature.Value < 0 {
			v = append(v, "vitals.temperature is negative")
		}
		if vit.Weight != nil && vit.Weight.Value < 0 {
			v = append(v, "vitals.weight is negative")
		}
		if bp := vit.BloodPressure; bp != nil && (bp.Systolic < 0 || bp.Diastolic < 0) {
			v = append(v, "vitals.bloodPressure is negative")
		}
	}

	return ValidationResult{Valid: len(v) == 0, Violations: v}
}

func checkSet(name string, items []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			out = append(out, name+" contains a blank entry")
			continue
		}
		if _, ok := seen[s]; ok {
			out = append(out, fmt.Sprintf("%s contains %q more than once", name, s))
			continue
		}
		seen[s] = struct{}{}
	}
	return out
}
