package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-intake-agent/internal/intake"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Save(ctx context.Context, c *Consultation) error
}

type postgresRepo struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRepository(db *sql.DB, logger zerolog.Logger) Repository {
	return &postgresRepo{db: db, logger: logger}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	query := `SELECT id, patient_id, history, record, created_at, updated_at FROM intake_sessions WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var c Consultation
	var historyJSON, recordJSON []byte

	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&historyJSON,
		&recordJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	c.History = []Message{}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &c.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	// A damaged record degrades to defaults instead of locking the patient out.
	record, issues := intake.DecodeRecord(recordJSON)
	if len(issues) > 0 {
		r.logger.Warn().Str("consultation_id", id.String()).Strs("issues", issues).Msg("stored record did not decode cleanly")
	}
	c.Record = record

	return &c, nil
}

func (r *postgresRepo) Save(ctx context.Context, c *Consultation) error {
	historyJSON, err := json.Marshal(c.History)
	if err != nil {
		return err
	}
	recordJSON, err := json.Marshal(c.Record)
	if err != nil {
		return err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()

	query := `
		INSERT INTO intake_sessions (id, patient_id, history, record, active_agent, booking_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			history = $3,
			record = $4,
			active_agent = $5,
			booking_status = $6,
			updated_at = $8
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.PatientID, historyJSON, recordJSON,
		string(c.Record.ActiveAgent), string(c.Record.BookingStatus), c.CreatedAt, c.UpdatedAt)
	return err
}
