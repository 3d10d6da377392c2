package intake

import "strings"

// Agent is one of the fixed specialist roles of the intake pipeline.
type Agent string

const (
	AgentVitalsTriage         Agent = "VitalsTriageAgent"
	AgentTriage               Agent = "Triage"
	AgentClinicalInvestigator Agent = "ClinicalInvestigator"
	AgentRecordsClerk         Agent = "RecordsClerk"
	AgentHistorySpecialist    Agent = "HistorySpecialist"
	AgentHandoverSpecialist   Agent = "HandoverSpecialist"
)

// Agents returns every role in pipeline order.
func Agents() []Agent {
	return []Agent{
		AgentVitalsTriage,
		AgentTriage,
		AgentClinicalInvestigator,
		AgentRecordsClerk,
		AgentHistorySpecialist,
		AgentHandoverSpecialist,
	}
}

func (a Agent) Valid() bool {
	switch a {
	case AgentVitalsTriage, AgentTriage, AgentClinicalInvestigator,
		AgentRecordsClerk, AgentHistorySpecialist, AgentHandoverSpecialist:
		return true
	}
	return false
}

// ParseAgent matches a role name, ignoring case and surrounding whitespace.
func ParseAgent(s string) (Agent, bool) {
	s = strings.TrimSpace(s)
	for _, a := range Agents() {
		if strings.EqualFold(s, string(a)) {
			return a, true
		}
	}
	return "", false
}

// NormalizeAgent turns an externally supplied role name into a known agent.
// Unknown names fall back to VitalsTriageAgent while vitals are open and to
// ClinicalInvestigator afterwards.
func NormalizeAgent(raw string, r Record) Agent {
	if a, ok := ParseAgent(raw); ok {
		return a
	}
	if !r.VitalsCompleted() {
		return AgentVitalsTriage
	}
	return AgentClinicalInvestigator
}
