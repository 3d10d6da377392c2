package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-intake-agent/internal/intake"
)

const longHPI = "Dull headache over both temples for three days, worse after screen work, eased by rest."

type fixture struct {
	svc     Service
	repo    *mockRepo
	ai      *mockSpecialist
	reports *mockReports
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{repo: newMockRepo(), ai: &mockSpecialist{}, reports: newMockReports()}
	opts.Logger = zerolog.Nop()
	svc, err := NewService(f.repo, f.ai, f.reports, NewMemoryLocker(), opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) start(t *testing.T) *Consultation {
	t.Helper()
	c, err := f.svc.CreateConsultation(context.Background(), uuid.New())
	require.NoError(t, err)
	return c
}

func (f *fixture) turn(t *testing.T, id uuid.UUID, text string) *TurnResult {
	t.Helper()
	res, err := f.svc.ProcessTurn(context.Background(), TurnRequest{ConsultationID: id, Text: text})
	require.NoError(t, err)
	return res
}

func TestCreateConsultation(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)

	stored := f.repo.get(c.ID)
	assert.Equal(t, intake.AgentVitalsTriage, stored.Record.ActiveAgent)
	assert.Empty(t, stored.History)

	snap, err := f.svc.GetConsultation(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, intake.StageVitals, snap.Stage)
	assert.Equal(t, 0, snap.Completeness)
}

func TestProcessTurn_FullIntake(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.proposals = []Proposal{
		{Reply: "Thanks, vitals noted.", Update: intake.Update{Vitals: &intake.VitalsUpdate{
			PatientName:          ptr("Anna"),
			Temperature:          &intake.Measurement{Value: 36.9, Unit: "C"},
			VitalsStageCompleted: ptr(true),
		}}},
		{Reply: "What brings you in?", Update: intake.Update{ChiefComplaint: ptr("Headache")}},
		{Reply: "Tell me more.", Update: intake.Update{HPI: ptr(longHPI)}},
		{Reply: "No prior records.", Update: intake.Update{RecordsCheckCompleted: ptr(true)}},
		{Reply: "Noted.", Update: intake.Update{Medications: []string{"Ibuprofen"}}},
		{Reply: "Summary ready.", Update: intake.Update{ClinicalHandover: &intake.Handover{
			Situation: "Headache", Recommendation: "GP review",
		}}},
	}

	wantAgents := []intake.Agent{
		intake.AgentTriage,
		intake.AgentClinicalInvestigator,
		intake.AgentRecordsClerk,
		intake.AgentHistorySpecialist,
		intake.AgentHandoverSpecialist,
		intake.AgentHandoverSpecialist,
	}
	for i, want := range wantAgents {
		res := f.turn(t, c.ID, "message")
		assert.Equal(t, want, res.Agent, "turn %d", i)
		assert.Equal(t, intake.AgentToStage(want), res.Stage, "turn %d", i)
		assert.Empty(t, res.Violations, "turn %d", i)
	}

	stored := f.repo.get(c.ID)
	assert.Len(t, stored.History, 2*len(wantAgents))
	assert.Equal(t, intake.AgentVitalsTriage, stored.History[0].Agent)
	assert.Equal(t, intake.TriageNormal, stored.Record.Vitals.TriageDecision)
	assert.Equal(t, 80, intake.CalculateCompleteness(stored.Record))

	// The specialist always answers for the agent active before the turn.
	assert.Equal(t, intake.AgentVitalsTriage, f.ai.calls[0].Agent)
	assert.Equal(t, intake.AgentHandoverSpecialist, f.ai.calls[5].Agent)

	select {
	case got := <-f.reports.handovers:
		assert.Equal(t, c.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("handover report was not sent")
	}
	assert.Empty(t, f.reports.emergencies)
}

func TestReachedHandover(t *testing.T) {
	atHandover := func(h *intake.Handover) intake.Record {
		r := intake.NewRecord()
		r.ActiveAgent = intake.AgentHandoverSpecialist
		r.ClinicalHandover = h
		return r
	}
	note := &intake.Handover{Situation: "Headache"}
	blank := &intake.Handover{Situation: "  "}
	investigating := intake.NewRecord()
	investigating.ActiveAgent = intake.AgentClinicalInvestigator

	tests := []struct {
		name       string
		prev, next intake.Record
		want       bool
	}{
		{"first note", atHandover(nil), atHandover(note), true},
		{"arrives with note", investigating, atHandover(note), true},
		{"blank note", atHandover(nil), atHandover(blank), false},
		{"note after blank", atHandover(blank), atHandover(note), true},
		{"already sent", atHandover(note), atHandover(note), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reachedHandover(tt.prev, tt.next))
		})
	}
}

func TestProcessTurn_VitalsClosureForcesTriage(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.proposals = []Proposal{{Update: intake.Update{
		Vitals:         &intake.VitalsUpdate{VitalsStageCompleted: ptr(true)},
		ChiefComplaint: ptr("Cough"),
	}}}

	res := f.turn(t, c.ID, "done with vitals")
	assert.Equal(t, intake.AgentTriage, res.Agent)
	assert.Empty(t, res.Violations)
	assert.Equal(t, "Cough", *res.Record.ChiefComplaint)

	res = f.turn(t, c.ID, "next")
	assert.Equal(t, intake.AgentClinicalInvestigator, res.Agent)
}

func TestProcessTurn_ModelCannotPickAgent(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.proposals = []Proposal{{Update: intake.Update{CurrentAgent: ptr("HandoverSpecialist")}}}

	res := f.turn(t, c.ID, "skip ahead please")
	assert.Equal(t, intake.AgentVitalsTriage, res.Agent)
}

func TestProcessTurn_EmergencyVitalsRaiseAlert(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.proposals = []Proposal{{Update: intake.Update{Vitals: &intake.VitalsUpdate{
		BloodPressure:        &intake.BloodPressure{Systolic: 195, Diastolic: 110},
		VitalsStageCompleted: ptr(true),
	}}}}

	res := f.turn(t, c.ID, "my pressure is 195 over 110")
	assert.Equal(t, intake.TriageEmergency, res.Record.Vitals.TriageDecision)
	assert.Contains(t, *res.Record.Vitals.TriageReason, "systolic")
	assert.Equal(t, intake.AgentTriage, res.Agent)

	select {
	case got := <-f.reports.emergencies:
		assert.Equal(t, c.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("emergency alert was not sent")
	}
}

func TestProcessTurn_EmergencyAlertSentOnce(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	emergency := intake.TriageEmergency
	pending := intake.TriagePending
	f.ai.proposals = []Proposal{
		{Reply: "Please call an ambulance.", Update: intake.Update{Vitals: &intake.VitalsUpdate{
			TriageDecision: &emergency,
			TriageReason:   ptr("chest pain at rest"),
		}}},
		{Reply: "Help is on the way."},
	}

	f.turn(t, c.ID, "my chest hurts")
	select {
	case <-f.reports.emergencies:
	case <-time.After(2 * time.Second):
		t.Fatal("emergency alert was not sent")
	}

	f.turn(t, c.ID, "still hurts")
	select {
	case <-f.reports.emergencies:
		t.Fatal("emergency alert sent twice")
	case <-time.After(100 * time.Millisecond):
	}

	// A later proposal cannot reset the decision and trigger a fresh
	// classification.
	f.ai.proposals = []Proposal{
		{Reply: "Noted.", Update: intake.Update{Vitals: &intake.VitalsUpdate{
			BloodPressure:        &intake.BloodPressure{Systolic: 200, Diastolic: 120},
			VitalsStageCompleted: ptr(true),
		}}},
		{Reply: "Let's recheck.", Update: intake.Update{Vitals: &intake.VitalsUpdate{TriageDecision: &pending}}},
	}
	f.turn(t, c.ID, "pressure is 200 over 120")
	res := f.turn(t, c.ID, "recheck please")
	assert.Equal(t, intake.TriageEmergency, res.Record.Vitals.TriageDecision)
	select {
	case <-f.reports.emergencies:
		t.Fatal("emergency alert sent again after a pending proposal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProcessTurn_SpecialistFailureKeepsRecord(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.err = errors.New("upstream unavailable")

	res := f.turn(t, c.ID, "hello")
	assert.True(t, res.Degraded)
	assert.Equal(t, apologyReply, res.Reply)
	assert.Equal(t, intake.NewRecord(), res.Record)

	stored := f.repo.get(c.ID)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "hello", stored.History[0].Content)
	assert.Equal(t, apologyReply, stored.History[1].Content)
}

func TestProcessTurn_SpecialistTimeout(t *testing.T) {
	f := newFixture(t, Options{AgentTimeout: 20 * time.Millisecond})
	c := f.start(t)
	f.ai.block = make(chan struct{})
	defer close(f.ai.block)

	res := f.turn(t, c.ID, "hello")
	assert.True(t, res.Degraded)
	assert.Equal(t, intake.AgentVitalsTriage, res.Agent)
}

func TestProcessTurn_DuplicateTurnID(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.proposals = []Proposal{{Reply: "ok", Update: intake.Update{Vitals: &intake.VitalsUpdate{PatientName: ptr("Anna")}}}}

	req := TurnRequest{ConsultationID: c.ID, TurnID: "turn-1", Text: "I'm Anna"}
	first, err := f.svc.ProcessTurn(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.ProcessTurn(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.ai.callCount())
	assert.Len(t, f.repo.get(c.ID).History, 2)
}

func TestProcessTurn_ConcurrentDuplicatesCollapse(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)
	f.ai.block = make(chan struct{})

	req := TurnRequest{ConsultationID: c.ID, TurnID: "turn-1", Text: "hi"}
	var wg sync.WaitGroup
	results := make([]*TurnResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.ProcessTurn(context.Background(), req)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return f.ai.callCount() == 1 }, time.Second, 5*time.Millisecond)
	close(f.ai.block)
	wg.Wait()

	assert.Equal(t, 1, f.ai.callCount())
	assert.Len(t, f.repo.get(c.ID).History, 2)
}

func TestProcessTurn_Errors(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{ConsultationID: uuid.New(), Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.svc.ProcessTurn(context.Background(), TurnRequest{ConsultationID: uuid.New(), Text: "hello"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookAppointment(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.start(t)

	_, err := f.svc.BookAppointment(context.Background(), c.ID, "2026-11-02T09:00:00Z")
	assert.ErrorIs(t, err, ErrNotReady)

	stored := f.repo.get(c.ID)
	ready := intake.BookingReady
	stored.Record = intake.MergeMedicalData(stored.Record, intake.Update{
		Vitals:                &intake.VitalsUpdate{VitalsStageCompleted: ptr(true)},
		ChiefComplaint:        ptr("Headache"),
		HPI:                   ptr(longHPI),
		RecordsCheckCompleted: ptr(true),
		BookingStatus:         &ready,
	}, "")
	require.Equal(t, intake.BookingReady, stored.Record.BookingStatus)
	require.NoError(t, f.repo.Save(context.Background(), stored))

	snap, err := f.svc.BookAppointment(context.Background(), c.ID, "2026-11-02T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, intake.BookingBooked, snap.Consultation.Record.BookingStatus)
	assert.Equal(t, "2026-11-02T09:00:00Z", *snap.Consultation.Record.AppointmentDate)
	assert.Equal(t, intake.AgentHistorySpecialist, snap.Agent)

	_, err = f.svc.BookAppointment(context.Background(), c.ID, "2026-11-03T09:00:00Z")
	assert.ErrorIs(t, err, ErrNotReady)
}
