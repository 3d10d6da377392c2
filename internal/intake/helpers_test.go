package intake

func ptr[T any](v T) *T { return &v }

const sufficientHPI = "Throbbing frontal headache for three days, worse in the morning, no fever or vomiting."

// completeRecord returns a record that has passed every routing gate.
func completeRecord() Record {
	r := NewRecord()
	r.Vitals.VitalsStageCompleted = true
	r.Vitals.PatientName = ptr("Anna")
	r.Vitals.PatientAge = ptr(34)
	r.Vitals.TriageDecision = TriageNormal
	r.ChiefComplaint = ptr("Headache")
	r.HPI = ptr(sufficientHPI)
	r.RecordsCheckCompleted = true
	r.Medications = []string{"Ibuprofen"}
	r.ActiveAgent = AgentHandoverSpecialist
	return r
}
