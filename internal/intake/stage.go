package intake

// Stage is the patient-facing progress label for an agent.
type Stage string

const (
	StageUnknown       Stage = ""
	StageVitals        Stage = "vitals"
	StageTriage        Stage = "triage"
	StageInvestigation Stage = "investigation"
	StageRecords       Stage = "records"
	StageProfile       Stage = "profile"
	StageSummary       Stage = "summary"
)

// AgentToStage maps an agent to its stage. It depends on nothing but the agent.
func AgentToStage(a Agent) Stage {
	switch a {
	case AgentVitalsTriage:
		return StageVitals
	case AgentTriage:
		return StageTriage
	case AgentClinicalInvestigator:
		return StageInvestigation
	case AgentRecordsClerk:
		return StageRecords
	case AgentHistorySpecialist:
		return StageProfile
	case AgentHandoverSpecialist:
		return StageSummary
	}
	return StageUnknown
}

// Stages returns the stages in pipeline order.
func Stages() []Stage {
	agents := Agents()
	out := make([]Stage, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentToStage(a))
	}
	return out
}
