package consultation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"medical-intake-agent/internal/intake"
)

// =========== Mock Repository ===========

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Consultation
	saves int
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Consultation)}
}

func cloneConsultation(c *Consultation) *Consultation {
	out := *c
	out.History = append([]Message(nil), c.History...)
	out.Record = c.Record.Clone()
	return &out
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneConsultation(c), nil
}

func (m *mockRepo) Save(_ context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.store[c.ID] = cloneConsultation(c)
	return nil
}

func (m *mockRepo) get(id uuid.UUID) *Consultation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneConsultation(m.store[id])
}

// =========== Mock Specialist ===========

type specialistCall struct {
	Agent  intake.Agent
	Record intake.Record
}

type mockSpecialist struct {
	mu        sync.Mutex
	proposals []Proposal
	err       error
	block     chan struct{}
	calls     []specialistCall
}

func (m *mockSpecialist) Propose(ctx context.Context, agent intake.Agent, record intake.Record, _ []Message) (Proposal, error) {
	m.mu.Lock()
	m.calls = append(m.calls, specialistCall{Agent: agent, Record: record})
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Proposal{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Proposal{}, m.err
	}
	if len(m.proposals) == 0 {
		return Proposal{Reply: "Please go on."}, nil
	}
	p := m.proposals[0]
	m.proposals = m.proposals[1:]
	return p, nil
}

func (m *mockSpecialist) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// =========== Mock Reports ===========

type mockReports struct {
	handovers   chan Consultation
	emergencies chan Consultation
}

func newMockReports() *mockReports {
	return &mockReports{
		handovers:   make(chan Consultation, 4),
		emergencies: make(chan Consultation, 4),
	}
}

func (m *mockReports) SendHandoverReport(_ context.Context, c Consultation) error {
	m.handovers <- c
	return nil
}

func (m *mockReports) SendEmergencyAlert(_ context.Context, c Consultation) error {
	m.emergencies <- c
	return nil
}

func ptr[T any](v T) *T { return &v }
