package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/intake"
)

type fakeGenerator struct {
	out    string
	err    error
	system string
	prompt string
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.out, f.err
}

func TestPropose_DecodesReplyAndUpdate(t *testing.T) {
	gen := &fakeGenerator{out: `{"reply":"What brings you in today?","update":{"chiefComplaint":"headache","medications":["ibuprofen"," "]}}`}
	c := NewSpecialistClient(gen, zerolog.Nop())

	rec := intake.NewRecord()
	history := []consultation.Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi"}}
	p, err := c.Propose(context.Background(), intake.AgentTriage, rec, history)
	require.NoError(t, err)

	assert.Equal(t, "What brings you in today?", p.Reply)
	require.NotNil(t, p.Update.ChiefComplaint)
	assert.Equal(t, "headache", *p.Update.ChiefComplaint)
	assert.Contains(t, gen.system, "triage specialist")
	assert.Contains(t, gen.system, `"reply"`)
	assert.Contains(t, gen.prompt, "[CURRENT RECORD]")
	assert.Contains(t, gen.prompt, "Patient: hello")
	assert.Contains(t, gen.prompt, "Assistant: hi")
}

func TestPropose_GeneratorError(t *testing.T) {
	c := NewSpecialistClient(&fakeGenerator{err: errors.New("quota")}, zerolog.Nop())
	_, err := c.Propose(context.Background(), intake.AgentRecordsClerk, intake.NewRecord(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RecordsClerk")
}

func TestBuildPrompt_KeepsRecentHistory(t *testing.T) {
	var history []consultation.Message
	for i := 0; i < historyWindow+5; i++ {
		history = append(history, consultation.Message{Role: "user", Content: fmt.Sprintf("msg-%02d", i)})
	}
	prompt, err := buildPrompt(intake.NewRecord(), history)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "msg-04")
	assert.Contains(t, prompt, "msg-05")
	assert.Contains(t, prompt, fmt.Sprintf("msg-%02d", historyWindow+4))
}

func TestParseProposal(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		p, err := parseProposal("```json\n{\"reply\":\"ok\",\"update\":{\"hpi\":\"two days\"}}\n```")
		require.NoError(t, err)
		assert.Equal(t, "ok", p.Reply)
		require.NotNil(t, p.Update.HPI)
		assert.Empty(t, p.Issues)
	})

	t.Run("plain text", func(t *testing.T) {
		p, err := parseProposal("Please tell me more.")
		require.NoError(t, err)
		assert.Equal(t, "Please tell me more.", p.Reply)
		assert.Equal(t, intake.Update{}, p.Update)
		assert.NotEmpty(t, p.Issues)
	})

	t.Run("bad update fields are reported", func(t *testing.T) {
		p, err := parseProposal(`{"reply":"ok","update":{"hpi":42,"chiefComplaint":"cough"}}`)
		require.NoError(t, err)
		assert.Nil(t, p.Update.HPI)
		require.NotNil(t, p.Update.ChiefComplaint)
		assert.Contains(t, p.Issues, "hpi: expected string")
	})

	t.Run("model cannot pick the agent", func(t *testing.T) {
		p, err := parseProposal(`{"reply":"ok","update":{"currentAgent":"HandoverSpecialist"}}`)
		require.NoError(t, err)
		assert.Nil(t, p.Update.CurrentAgent)
	})

	t.Run("null update", func(t *testing.T) {
		p, err := parseProposal(`{"reply":"ok","update":null}`)
		require.NoError(t, err)
		assert.Equal(t, intake.Update{}, p.Update)
	})

	t.Run("empty reply", func(t *testing.T) {
		_, err := parseProposal(`{"reply":"  ","update":{}}`)
		assert.ErrorIs(t, err, ErrEmptyReply)
		_, err = parseProposal("   ")
		assert.ErrorIs(t, err, ErrEmptyReply)
	})
}

func TestSystemPrompt_EveryAgent(t *testing.T) {
	for _, a := range intake.Agents() {
		assert.NotEmpty(t, agentInstructions[a], a)
		assert.Contains(t, systemPrompt(a), "JSON")
	}
}

func TestOfflineClient(t *testing.T) {
	p, err := NewOfflineClient().Propose(context.Background(), intake.AgentHistorySpecialist, intake.NewRecord(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Reply)
	assert.Equal(t, intake.Update{}, p.Update)
}
