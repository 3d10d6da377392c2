package intake

// Completeness weights; they sum to 100.
const (
	weightChiefComplaint = 20
	weightHPI            = 20
	weightRecordsCheck   = 15
	weightHistory        = 15
	weightFamilyHistory  = 10
	weightSocialHistory  = 10
	weightHandover       = 10

	weightTotal = weightChiefComplaint + weightHPI + weightRecordsCheck + weightHistory +
		weightFamilyHistory + weightSocialHistory + weightHandover
)

// CalculateCompleteness applies DefaultPolicy.
func CalculateCompleteness(r Record) int {
	return DefaultPolicy.Completeness(r)
}

// Completeness returns the share of the tracked intake that has been gathered,
// as a whole percentage.
func (p Policy) Completeness(r Record) int {
	score := 0
	if present(r.ChiefComplaint) {
		score += weightChiefComplaint
	}
	if p.hpiSufficient(r.HPI) {
		score += weightHPI
	}
	if r.RecordsCheckCompleted {
		score += weightRecordsCheck
	}
	if r.HistoryCheckCompleted || r.hasHistorySignal() {
		score += weightHistory
	}
	if present(r.FamilyHistory) {
		score += weightFamilyHistory
	}
	if present(r.SocialHistory) {
		score += weightSocialHistory
	}
	if !r.ClinicalHandover.Empty() {
		score += weightHandover
	}
	pct := score * 100 / weightTotal
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
