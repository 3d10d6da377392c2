package intake

import "strings"

// MergeMedicalData fuses u into current under DefaultPolicy.
func MergeMedicalData(current Record, u Update, forced Agent) Record {
	return DefaultPolicy.Merge(current, u, forced)
}

// Merge returns a new record with u fused into current. Known values are
// never replaced by null or empty ones, list fields are unioned, and the
// active agent is re-derived from the merged record unless forced (or the
// update's CurrentAgent) names a valid agent.
func (p Policy) Merge(current Record, u Update, forced Agent) Record {
	next := current.Clone()

	if u.Vitals != nil {
		if next.Vitals == nil {
			next.Vitals = &Vitals{TriageDecision: TriagePending}
		}
		applyVitals(next.Vitals, u.Vitals)
	}

	next.ChiefComplaint = mergeText(next.ChiefComplaint, u.ChiefComplaint)
	next.HPI = mergeText(next.HPI, u.HPI)
	next.FamilyHistory = mergeText(next.FamilyHistory, u.FamilyHistory)
	next.SocialHistory = mergeText(next.SocialHistory, u.SocialHistory)
	next.UCGRecommendations = mergeText(next.UCGRecommendations, u.UCGRecommendations)

	next.MedicalRecords = union(next.MedicalRecords, u.MedicalRecords)
	next.Medications = union(next.Medications, u.Medications)
	next.Allergies = union(next.Allergies, u.Allergies)
	next.PastMedicalHistory = union(next.PastMedicalHistory, u.PastMedicalHistory)
	next.ReviewOfSystems = union(next.ReviewOfSystems, u.ReviewOfSystems)

	// Records check may be reopened; history check only ever closes.
	if u.RecordsCheckCompleted != nil {
		next.RecordsCheckCompleted = *u.RecordsCheckCompleted
	}
	if u.HistoryCheckCompleted != nil {
		next.HistoryCheckCompleted = next.HistoryCheckCompleted || *u.HistoryCheckCompleted
	}

	if !u.ClinicalHandover.Empty() {
		next.ClinicalHandover = mergeHandover(next.ClinicalHandover, u.ClinicalHandover)
	}
	if present(u.AppointmentDate) {
		next.AppointmentDate = cloneString(u.AppointmentDate)
	}
	if u.BookingStatus != nil && u.BookingStatus.rank() > next.BookingStatus.rank() {
		next.BookingStatus = *u.BookingStatus
	}
	if next.BookingStatus == BookingReady && !p.ReadyForBooking(next) {
		next.BookingStatus = BookingCollecting
	}

	next.ActiveAgent = p.resolveAgent(next, u, forced)
	return next
}

func (p Policy) resolveAgent(merged Record, u Update, forced Agent) Agent {
	if forced.Valid() {
		return forced
	}
	if u.CurrentAgent != nil {
		if a, ok := ParseAgent(*u.CurrentAgent); ok {
			return a
		}
	}
	return p.DetermineAgent(merged)
}

// ReadyForBooking reports whether r satisfies every precondition of the
// ready booking status.
func (p Policy) ReadyForBooking(r Record) bool {
	return r.VitalsCompleted() && present(r.ChiefComplaint) && p.hpiSufficient(r.HPI) && r.RecordsCheckCompleted
}

func applyVitals(v *Vitals, u *VitalsUpdate) {
	if u == nil {
		return
	}
	v.PatientName = mergeText(v.PatientName, u.PatientName)
	v.PatientGender = mergeText(v.PatientGender, u.PatientGender)
	v.CurrentStatus = mergeText(v.CurrentStatus, u.CurrentStatus)
	v.TriageReason = mergeText(v.TriageReason, u.TriageReason)
	if u.PatientAge != nil {
		age := *u.PatientAge
		v.PatientAge = &age
	}
	if !u.Temperature.empty() {
		v.Temperature = u.Temperature.clone()
	}
	if !u.Weight.empty() {
		v.Weight = u.Weight.clone()
	}
	if !u.BloodPressure.empty() {
		bp := *u.BloodPressure
		bp.CollectedAt = cloneTime(u.BloodPressure.CollectedAt)
		v.BloodPressure = &bp
	}
	// A decision, once made, is not taken back to pending.
	if u.TriageDecision != nil && u.TriageDecision.Valid() && *u.TriageDecision != TriagePending {
		v.TriageDecision = *u.TriageDecision
	}
	if u.VitalsStageCompleted != nil {
		v.VitalsStageCompleted = *u.VitalsStageCompleted
	}
}

// mergeHandover overlays the non-blank sections of add onto cur.
func mergeHandover(cur, add *Handover) *Handover {
	out := Handover{}
	if cur != nil {
		out = *cur
	}
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&out.Situation, add.Situation},
		{&out.Background, add.Background},
		{&out.Assessment, add.Assessment},
		{&out.Recommendation, add.Recommendation},
	} {
		if strings.TrimSpace(f.src) != "" {
			*f.dst = f.src
		}
	}
	return &out
}

// mergeText keeps cur unless next carries non-blank text. An empty proposal
// only fills a field that was still unknown.
func mergeText(cur, next *string) *string {
	switch {
	case next == nil:
		return cur
	case strings.TrimSpace(*next) != "":
		return cloneString(next)
	case cur == nil:
		return cloneString(next)
	}
	return cur
}

// union appends the entries of add missing from cur. Entries are trimmed and
// blank ones dropped.
func union(cur, add []string) []string {
	if len(add) == 0 {
		return cur
	}
	seen := make(map[string]struct{}, len(cur)+len(add))
	out := make([]string, 0, len(cur)+len(add))
	for _, list := range [][]string{cur, add} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
