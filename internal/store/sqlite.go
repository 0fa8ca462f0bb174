// Package store provides storage backends for GymBot.
//
// This file implements the SQLite-backed interaction store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/gymbrocolombia/gymbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; the containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) UpsertInteraction(phone, plan string, ts time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO interacciones (telefono, plan_interesado, ultima_interaccion)
		VALUES (?, ?, ?)
		ON CONFLICT(telefono) DO UPDATE SET
			plan_interesado = excluded.plan_interesado,
			ultima_interaccion = excluded.ultima_interaccion`,
		phone, nilIfEmpty(plan), ts)
	if err != nil {
		slog.Error("SQLiteStore UpsertInteraction failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to upsert interaction for %s: %w", phone, err)
	}
	slog.Debug("SQLiteStore UpsertInteraction succeeded", "phone", phone, "plan", plan)
	return nil
}

func (s *SQLiteStore) UpdateFeedback(phone, text string) error {
	_, err := s.db.Exec(`UPDATE interacciones SET experiencia = ? WHERE telefono = ?`, text, phone)
	if err != nil {
		slog.Error("SQLiteStore UpdateFeedback failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update feedback for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) MarkContracted(phone string, ts time.Time, durationDays int) error {
	var err error
	if durationDays > 0 {
		_, err = s.db.Exec(`
			UPDATE interacciones
			SET contratado = 1, fecha_contratacion = ?, plan_duracion = ?
			WHERE telefono = ?`, ts, durationDays, phone)
	} else {
		_, err = s.db.Exec(`
			UPDATE interacciones
			SET contratado = 1, fecha_contratacion = ?
			WHERE telefono = ?`, ts, phone)
	}
	if err != nil {
		slog.Error("SQLiteStore MarkContracted failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to mark contracted for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) TouchLastContacted(phone string, ts time.Time) error {
	_, err := s.db.Exec(`
		UPDATE interacciones
		SET ultima_interaccion = ?, fecha_ultimo_mensaje = ?
		WHERE telefono = ?`, ts, ts, phone)
	if err != nil {
		slog.Error("SQLiteStore TouchLastContacted failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to touch last contacted for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) QueryFollowUpCandidates(now time.Time, idleCutoff time.Time, expiryWindowDays int) ([]models.FollowUpCandidate, error) {
	rows, err := s.db.Query(`
		SELECT telefono, contratado, fecha_contratacion, plan_duracion
		FROM interacciones
		WHERE (contratado = 0 AND ultima_interaccion < ?)
		   OR (contratado = 1 AND fecha_contratacion IS NOT NULL AND plan_duracion IS NOT NULL)`,
		idleCutoff)
	if err != nil {
		slog.Error("SQLiteStore QueryFollowUpCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query follow-up candidates: %w", err)
	}
	defer rows.Close()

	candidates, err := collectFollowUpCandidates(rows, now, expiryWindowDays)
	if err != nil {
		slog.Error("SQLiteStore QueryFollowUpCandidates scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore QueryFollowUpCandidates succeeded", "count", len(candidates))
	return candidates, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
