// This file implements the PostgreSQL-backed interaction store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/gymbrocolombia/gymbot/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool settings for PostgreSQL.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertInteraction(phone, plan string, ts time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO interacciones (telefono, plan_interesado, ultima_interaccion)
		VALUES ($1, $2, $3)
		ON CONFLICT (telefono) DO UPDATE SET
			plan_interesado = EXCLUDED.plan_interesado,
			ultima_interaccion = EXCLUDED.ultima_interaccion`,
		phone, nilIfEmpty(plan), ts)
	if err != nil {
		slog.Error("PostgresStore UpsertInteraction failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to upsert interaction for %s: %w", phone, err)
	}
	slog.Debug("PostgresStore UpsertInteraction succeeded", "phone", phone, "plan", plan)
	return nil
}

func (s *PostgresStore) UpdateFeedback(phone, text string) error {
	_, err := s.db.Exec(`UPDATE interacciones SET experiencia = $1 WHERE telefono = $2`, text, phone)
	if err != nil {
		slog.Error("PostgresStore UpdateFeedback failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update feedback for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) MarkContracted(phone string, ts time.Time, durationDays int) error {
	var err error
	if durationDays > 0 {
		_, err = s.db.Exec(`
			UPDATE interacciones
			SET contratado = TRUE, fecha_contratacion = $1, plan_duracion = $2
			WHERE telefono = $3`, ts, durationDays, phone)
	} else {
		_, err = s.db.Exec(`
			UPDATE interacciones
			SET contratado = TRUE, fecha_contratacion = $1
			WHERE telefono = $2`, ts, phone)
	}
	if err != nil {
		slog.Error("PostgresStore MarkContracted failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to mark contracted for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) TouchLastContacted(phone string, ts time.Time) error {
	_, err := s.db.Exec(`
		UPDATE interacciones
		SET ultima_interaccion = $1, fecha_ultimo_mensaje = $2
		WHERE telefono = $3`, ts, ts, phone)
	if err != nil {
		slog.Error("PostgresStore TouchLastContacted failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to touch last contacted for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) QueryFollowUpCandidates(now time.Time, idleCutoff time.Time, expiryWindowDays int) ([]models.FollowUpCandidate, error) {
	rows, err := s.db.Query(`
		SELECT telefono, contratado, fecha_contratacion, plan_duracion
		FROM interacciones
		WHERE (contratado = FALSE AND ultima_interaccion < $1)
		   OR (contratado = TRUE AND fecha_contratacion IS NOT NULL AND plan_duracion IS NOT NULL)`,
		idleCutoff)
	if err != nil {
		slog.Error("PostgresStore QueryFollowUpCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query follow-up candidates: %w", err)
	}
	defer rows.Close()

	candidates, err := collectFollowUpCandidates(rows, now, expiryWindowDays)
	if err != nil {
		slog.Error("PostgresStore QueryFollowUpCandidates scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore QueryFollowUpCandidates succeeded", "count", len(candidates))
	return candidates, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
