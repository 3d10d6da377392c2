package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	connectAttempts = 10
	connectDelay    = 2 * time.Second
)

// Open connects to Postgres, retrying while the database starts up.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	for i := 1; i <= connectAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Info().Msg("connected to database")
			return db, nil
		}
		logger.Warn().Err(err).Msgf("waiting for database (%d/%d)", i, connectAttempts)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("connect to database: %w", err)
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (or rolls back) the migrations in dir. Nothing to do is
// not an error.
func Migrate(dir, dsn string, direction Direction, logger zerolog.Logger) error {
	if direction != Up && direction != Down {
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), dsn)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()

	if direction == Up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info().Str("direction", string(direction)).Msg("migrations already current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	logger.Info().Str("direction", string(direction)).Msg("migrations applied")
	return nil
}
