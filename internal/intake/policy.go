package intake

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// VitalThresholds are the cut-offs ClassifyVitals uses. Temperatures are in
// degrees Celsius, pressures in mmHg.
type VitalThresholds struct {
	FeverC        float64
	HyperpyrexiaC float64
	HypothermiaC  float64
	SystolicHigh  int
	SystolicLow   int
	DiastolicHigh int
}

// Policy holds the tunable constants of the engine. The zero value is not
// useful; start from DefaultPolicy.
type Policy struct {
	MinHPILength int
	Vitals       VitalThresholds
}

var DefaultPolicy = Policy{
	MinHPILength: 50,
	Vitals: VitalThresholds{
		FeverC:        38.0,
		HyperpyrexiaC: 40.0,
		HypothermiaC:  35.0,
		SystolicHigh:  180,
		SystolicLow:   90,
		DiastolicHigh: 120,
	},
}

func (p Policy) hpiSufficient(hpi *string) bool {
	if hpi == nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(*hpi)) >= p.MinHPILength
}

// ClassifyVitals suggests a triage decision from the captured measurements.
// It returns TriagePending when nothing measurable has been collected.
func (p Policy) ClassifyVitals(v *Vitals) (TriageDecision, string) {
	if v == nil || (v.Temperature == nil && v.BloodPressure == nil) {
		return TriagePending, ""
	}
	var reasons []string
	if v.Temperature != nil {
		c := celsius(*v.Temperature)
		switch {
		case c >= p.Vitals.HyperpyrexiaC:
			reasons = append(reasons, fmt.Sprintf("temperature %.1f°C at or above %.1f°C", c, p.Vitals.HyperpyrexiaC))
		case c > 0 && c < p.Vitals.HypothermiaC:
			reasons = append(reasons, fmt.Sprintf("temperature %.1f°C below %.1f°C", c, p.Vitals.HypothermiaC))
		}
	}
	if bp := v.BloodPressure; bp != nil {
		if bp.Systolic >= p.Vitals.SystolicHigh {
			reasons = append(reasons, fmt.Sprintf("systolic pressure %d at or above %d", bp.Systolic, p.Vitals.SystolicHigh))
		}
		if bp.Systolic > 0 && bp.Systolic < p.Vitals.SystolicLow {
			reasons = append(reasons, fmt.Sprintf("systolic pressure %d below %d", bp.Systolic, p.Vitals.SystolicLow))
		}
		if bp.Diastolic >= p.Vitals.DiastolicHigh {
			reasons = append(reasons, fmt.Sprintf("diastolic pressure %d at or above %d", bp.Diastolic, p.Vitals.DiastolicHigh))
		}
	}
	if len(reasons) > 0 {
		return TriageEmergency, strings.Join(reasons, "; ")
	}
	if v.Temperature != nil && celsius(*v.Temperature) >= p.Vitals.FeverC {
		return TriageNormal, "fever without emergency signs"
	}
	return TriageNormal, "vital signs within expected range"
}

func celsius(m Measurement) float64 {
	switch strings.ToUpper(strings.TrimSpace(m.Unit)) {
	case "F", "°F", "FAHRENHEIT":
		return (m.Value - 32) * 5 / 9
	}
	return m.Value
}
