package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"medical-intake-agent/internal/intake"
)

var (
	ErrNotFound     = errors.New("consultation not found")
	ErrNotReady     = errors.New("consultation is not ready for booking")
	ErrEmptyMessage = errors.New("message text is required")
)

const apologyReply = "I'm sorry, I couldn't process that just now. Could you please say it again?"

// SpecialistClient produces the specialist's answer for the active agent.
type SpecialistClient interface {
	Propose(ctx context.Context, agent intake.Agent, record intake.Record, history []Message) (Proposal, error)
}

// ReportService delivers clinician-facing notifications.
type ReportService interface {
	SendHandoverReport(ctx context.Context, c Consultation) error
	SendEmergencyAlert(ctx context.Context, c Consultation) error
}

type Service interface {
	CreateConsultation(ctx context.Context, patientID uuid.UUID) (*Consultation, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	BookAppointment(ctx context.Context, id uuid.UUID, date string) (*Snapshot, error)
}

type Options struct {
	Policy        intake.Policy
	AgentTimeout  time.Duration
	TurnCacheSize int
	Logger        zerolog.Logger
}

type service struct {
	repo      Repository
	aiClient  SpecialistClient
	reportSvc ReportService
	locker    Locker
	policy    intake.Policy
	timeout   time.Duration
	logger    zerolog.Logger

	turns    *lru.Cache[string, *TurnResult]
	inflight singleflight.Group
	now      func() time.Time
}

func NewService(repo Repository, ai SpecialistClient, report ReportService, locker Locker, opts Options) (Service, error) {
	if opts.Policy.MinHPILength <= 0 {
		opts.Policy = intake.DefaultPolicy
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 30 * time.Second
	}
	if opts.TurnCacheSize <= 0 {
		opts.TurnCacheSize = 1024
	}
	turns, err := lru.New[string, *TurnResult](opts.TurnCacheSize)
	if err != nil {
		return nil, fmt.Errorf("turn cache: %w", err)
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &service{
		repo:      repo,
		aiClient:  ai,
		reportSvc: report,
		locker:    locker,
		policy:    opts.Policy,
		timeout:   opts.AgentTimeout,
		logger:    opts.Logger.With().Str("component", "consultation").Logger(),
		turns:     turns,
		now:       time.Now,
	}, nil
}

func (s *service) CreateConsultation(ctx context.Context, patientID uuid.UUID) (*Consultation, error) {
	now := s.now()
	c := &Consultation{
		ID:        uuid.New(),
		PatientID: patientID,
		History:   []Message{},
		Record:    intake.NewRecord(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save consultation: %w", err)
	}
	s.logger.Info().Str("consultation_id", c.ID.String()).Msg("consultation created")
	return c, nil
}

func (s *service) GetConsultation(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(c), nil
}

// ProcessTurn runs one patient turn. Retries carrying the same TurnID get the
// original result instead of a second pass through the specialist.
func (s *service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyMessage
	}
	if req.TurnID == "" {
		return s.processTurn(ctx, req)
	}

	key := req.ConsultationID.String() + "/" + req.TurnID
	if res, ok := s.turns.Get(key); ok {
		return copyResult(res), nil
	}
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		if res, ok := s.turns.Get(key); ok {
			return res, nil
		}
		res, err := s.processTurn(ctx, req)
		if err != nil {
			return nil, err
		}
		s.turns.Add(key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return copyResult(v.(*TurnResult)), nil
}

func (s *service) processTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	log := s.logger.With().Str("consultation_id", req.ConsultationID.String()).Str("turn_id", req.TurnID).Logger()

	unlock, err := s.locker.Lock(ctx, req.ConsultationID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 1. Load the session
	c, err := s.repo.GetByID(ctx, req.ConsultationID)
	if err != nil {
		return nil, err
	}
	current := c.Record
	agent := current.ActiveAgent
	if !agent.Valid() {
		agent = intake.NormalizeAgent(string(agent), current)
	}

	c.History = append(c.History, Message{
		Role: "user", Content: req.Text, Agent: agent, Timestamp: s.now(),
	})

	// 2. Ask the active specialist, bounded by the agent timeout
	agentCtx, cancel := context.WithTimeout(ctx, s.timeout)
	proposal, err := s.aiClient.Propose(agentCtx, agent, current.Clone(), c.History)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("agent", string(agent)).Msg("specialist failed, keeping record unchanged")
		c.History = append(c.History, Message{
			Role: "assistant", Content: apologyReply, Agent: agent, Timestamp: s.now(),
		})
		if err := s.repo.Save(ctx, c); err != nil {
			return nil, fmt.Errorf("save consultation: %w", err)
		}
		res := s.result(req, c, apologyReply, nil)
		res.Degraded = true
		return res, nil
	}
	if len(proposal.Issues) > 0 {
		log.Warn().Strs("issues", proposal.Issues).Msg("specialist proposal had malformed fields")
	}

	// 3. Fuse. The model never chooses the next agent; closing the vitals
	// gate always hands over to triage.
	proposal.Update.CurrentAgent = nil
	var forced intake.Agent
	if closesVitals(current, proposal.Update) {
		forced = intake.AgentTriage
	}
	next := s.policy.Merge(current, proposal.Update, forced)

	// 4. Suggest a triage decision once vitals are in
	if next.VitalsCompleted() && next.Vitals.TriageDecision == intake.TriagePending {
		decision, reason := s.policy.ClassifyVitals(next.Vitals)
		if decision != intake.TriagePending {
			next = s.policy.Merge(next, intake.Update{Vitals: &intake.VitalsUpdate{
				TriageDecision: &decision,
				TriageReason:   &reason,
			}}, forced)
		}
	}
	emergency := isEmergency(next) && !isEmergency(current)

	// 5. Validate (advisory)
	validation := s.policy.Validate(next, forced != "")
	if !validation.Valid {
		log.Warn().Strs("violations", validation.Violations).Msg("record inconsistent after merge")
	}

	// 6. Persist
	c.Record = next
	c.History = append(c.History, Message{
		Role: "assistant", Content: proposal.Reply, Agent: agent, Timestamp: s.now(),
	})
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save consultation: %w", err)
	}
	log.Info().
		Str("from_agent", string(current.ActiveAgent)).
		Str("to_agent", string(next.ActiveAgent)).
		Int("completeness", s.policy.Completeness(next)).
		Msg("turn processed")

	// 7. Notify the clinician in the background
	if s.reportSvc != nil {
		if emergency {
			s.notify(*c, "emergency alert", s.reportSvc.SendEmergencyAlert)
		}
		if reachedHandover(current, next) {
			s.notify(*c, "handover report", s.reportSvc.SendHandoverReport)
		}
	}

	return s.result(req, c, proposal.Reply, validation.Violations), nil
}

func (s *service) BookAppointment(ctx context.Context, id uuid.UUID, date string) (*Snapshot, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, fmt.Errorf("appointment date is required")
	}
	unlock, err := s.locker.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Record.BookingStatus != intake.BookingReady {
		return nil, fmt.Errorf("%w: booking status is %s", ErrNotReady, c.Record.BookingStatus)
	}
	booked := intake.BookingBooked
	c.Record = s.policy.Merge(c.Record, intake.Update{BookingStatus: &booked, AppointmentDate: &date}, "")
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save consultation: %w", err)
	}
	s.logger.Info().Str("consultation_id", id.String()).Str("appointment_date", date).Msg("appointment booked")
	return s.snapshot(c), nil
}

func (s *service) notify(c Consultation, what string, send func(context.Context, Consultation) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := send(ctx, c); err != nil {
			s.logger.Error().Err(err).Str("consultation_id", c.ID.String()).Msgf("failed to send %s", what)
			return
		}
		s.logger.Info().Str("consultation_id", c.ID.String()).Msgf("%s sent", what)
	}()
}

func (s *service) snapshot(c *Consultation) *Snapshot {
	return &Snapshot{
		Consultation: c,
		Agent:        c.Record.ActiveAgent,
		Stage:        intake.AgentToStage(c.Record.ActiveAgent),
		Completeness: s.policy.Completeness(c.Record),
	}
}

func (s *service) result(req TurnRequest, c *Consultation, reply string, violations []string) *TurnResult {
	return &TurnResult{
		ConsultationID: c.ID,
		TurnID:         req.TurnID,
		Reply:          reply,
		Agent:          c.Record.ActiveAgent,
		Stage:          intake.AgentToStage(c.Record.ActiveAgent),
		Completeness:   s.policy.Completeness(c.Record),
		Record:         c.Record.Clone(),
		Violations:     violations,
	}
}

func closesVitals(current intake.Record, u intake.Update) bool {
	return !current.VitalsCompleted() && u.Vitals != nil &&
		u.Vitals.VitalsStageCompleted != nil && *u.Vitals.VitalsStageCompleted
}

func isEmergency(r intake.Record) bool {
	return r.Vitals != nil && r.Vitals.TriageDecision == intake.TriageEmergency
}

func reachedHandover(prev, next intake.Record) bool {
	return next.ActiveAgent == intake.AgentHandoverSpecialist && !next.ClinicalHandover.Empty() &&
		(prev.ActiveAgent != intake.AgentHandoverSpecialist || prev.ClinicalHandover.Empty())
}

func copyResult(r *TurnResult) *TurnResult {
	out := *r
	out.Record = r.Record.Clone()
	out.Violations = append([]string(nil), r.Violations...)
	return &out
}
