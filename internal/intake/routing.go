package intake

// DetermineAgent applies DefaultPolicy's routing rules.
func DetermineAgent(r Record) Agent {
	return DefaultPolicy.DetermineAgent(r)
}

// DetermineAgent returns the agent that should act next. The first rule that
// matches wins; missing sub-state routes to the earliest agent that can
// collect it.
func (p Policy) DetermineAgent(r Record) Agent {
	switch {
	case !r.VitalsCompleted():
		return AgentVitalsTriage
	case !present(r.ChiefComplaint):
		return AgentTriage
	case !p.hpiSufficient(r.HPI):
		return AgentClinicalInvestigator
	case !r.RecordsCheckCompleted:
		return AgentRecordsClerk
	case !r.HistoryCheckCompleted && !r.hasHistorySignal():
		return AgentHistorySpecialist
	default:
		return AgentHandoverSpecialist
	}
}
