package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/intake"
)

// historyWindow is how many recent messages are shown to the model.
const historyWindow = 20

var ErrEmptyReply = errors.New("specialist returned an empty reply")

// Generator asks a language model for a JSON answer.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

type client struct {
	gen    Generator
	logger zerolog.Logger
}

// NewSpecialistClient returns a consultation.SpecialistClient backed by gen.
func NewSpecialistClient(gen Generator, logger zerolog.Logger) consultation.SpecialistClient {
	return &client{gen: gen, logger: logger.With().Str("component", "specialist").Logger()}
}

func (c *client) Propose(ctx context.Context, a intake.Agent, record intake.Record, history []consultation.Message) (consultation.Proposal, error) {
	prompt, err := buildPrompt(record, history)
	if err != nil {
		return consultation.Proposal{}, err
	}
	raw, err := c.gen.GenerateJSON(ctx, systemPrompt(a), prompt)
	if err != nil {
		return consultation.Proposal{}, fmt.Errorf("%s: %w", a, err)
	}
	p, err := parseProposal(raw)
	if err != nil {
		return consultation.Proposal{}, fmt.Errorf("%s: %w", a, err)
	}
	c.logger.Debug().Str("agent", string(a)).Int("issues", len(p.Issues)).Msg("proposal received")
	return p, nil
}

func buildPrompt(record intake.Record, history []consultation.Message) (string, error) {
	rec, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var b strings.Builder
	b.WriteString("[CURRENT RECORD]\n")
	b.Write(rec)
	b.WriteString("\n\n[CONVERSATION]\n")
	for _, m := range history {
		role := "Patient"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(m.Content))
	}
	return b.String(), nil
}

// parseProposal reads the model's answer. Text that is not a JSON object is
// taken as the reply with no record changes.
func parseProposal(raw string) (consultation.Proposal, error) {
	text := stripFence(raw)
	var envelope struct {
		Reply  json.RawMessage `json:"reply"`
		Update json.RawMessage `json:"update"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil || envelope.Reply == nil {
		if text == "" {
			return consultation.Proposal{}, ErrEmptyReply
		}
		return consultation.Proposal{Reply: text, Issues: []string{"response was not a JSON proposal"}}, nil
	}

	var p consultation.Proposal
	if err := json.Unmarshal(envelope.Reply, &p.Reply); err != nil {
		p.Issues = append(p.Issues, "reply: expected string")
	}
	p.Reply = strings.TrimSpace(p.Reply)
	if p.Reply == "" {
		return consultation.Proposal{}, ErrEmptyReply
	}
	if len(envelope.Update) > 0 && string(envelope.Update) != "null" {
		u, issues := intake.DecodeUpdate(envelope.Update)
		// The engine picks the next agent, not the model.
		u.CurrentAgent = nil
		p.Update = u
		p.Issues = append(p.Issues, issues...)
	}
	return p, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type offlineClient struct{}

// NewOfflineClient returns a specialist that never changes the record. It is
// used when no model is configured.
func NewOfflineClient() consultation.SpecialistClient {
	return offlineClient{}
}

func (offlineClient) Propose(_ context.Context, a intake.Agent, _ intake.Record, _ []consultation.Message) (consultation.Proposal, error) {
	return consultation.Proposal{
		Reply: fmt.Sprintf("Thank you. The %s step is running without an assistant right now; a clinician will review your answers.", intake.AgentToStage(a)),
	}, nil
}
