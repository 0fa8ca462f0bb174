// Package store provides storage backends for GymBot interaction history.
//
// It includes SQLite and PostgreSQL stores plus an in-memory implementation
// used by tests and DSN-less deployments. All writes are keyed by phone and
// last-write-wins; callers serialize per-phone writes through the session
// store's identifier lock.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// Store is the persistence adapter contract for interaction records.
type Store interface {
	// UpsertInteraction records the latest interesting plan and interaction
	// time for a phone, inserting the row on first contact.
	UpsertInteraction(phone, plan string, ts time.Time) error
	// UpdateFeedback records the user's experience text.
	UpdateFeedback(phone, text string) error
	// MarkContracted flags the contact as contracted at ts. durationDays,
	// when positive, records the contracted plan length for renewals.
	MarkContracted(phone string, ts time.Time, durationDays int) error
	// TouchLastContacted updates the interaction and last-message timestamps
	// after an outbound follow-up succeeds.
	TouchLastContacted(phone string, ts time.Time) error
	// QueryFollowUpCandidates returns contacts due for re-engagement (not
	// contracted, idle since before idleCutoff) or renewal (contracted,
	// plan expiring within expiryWindowDays of now).
	QueryFollowUpCandidates(now time.Time, idleCutoff time.Time, expiryWindowDays int) ([]models.FollowUpCandidate, error)
	// Close releases the underlying resources.
	Close() error
}

// Opts holds store configuration options.
type Opts struct {
	DSN string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" so callers can
// pick the right driver from a single connection-string setting.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds a Store from options. No DSN selects the in-memory store;
// otherwise the DSN type picks the SQL backend.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("Using PostgreSQL store")
		return NewPostgresStore(opts...)
	}
	slog.Info("Using SQLite store", "path", cfg.DSN)
	return NewSQLiteStore(opts...)
}

// InMemoryStore keeps interaction records in a map. Used by tests and when
// no database DSN is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.InteractionRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.InteractionRecord)}
}

func (s *InMemoryStore) record(phone string) *models.InteractionRecord {
	r, ok := s.records[phone]
	if !ok {
		r = &models.InteractionRecord{Phone: phone}
		s.records[phone] = r
	}
	return r
}

func (s *InMemoryStore) UpsertInteraction(phone, plan string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(phone)
	r.PlanInterested = plan
	r.LastInteraction = ts
	return nil
}

func (s *InMemoryStore) UpdateFeedback(phone, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(phone).Experience = text
	return nil
}

func (s *InMemoryStore) MarkContracted(phone string, ts time.Time, durationDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(phone)
	r.Contracted = true
	r.ContractedAt = &ts
	if durationDays > 0 {
		r.PlanDurationDay = durationDays
	}
	return nil
}

func (s *InMemoryStore) TouchLastContacted(phone string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(phone)
	r.LastInteraction = ts
	r.LastMessageAt = &ts
	return nil
}

func (s *InMemoryStore) QueryFollowUpCandidates(now time.Time, idleCutoff time.Time, expiryWindowDays int) ([]models.FollowUpCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FollowUpCandidate
	for _, r := range s.records {
		if !r.Contracted {
			if r.LastInteraction.Before(idleCutoff) {
				out = append(out, models.FollowUpCandidate{Phone: r.Phone})
			}
			continue
		}
		if r.ContractedAt == nil || r.PlanDurationDay <= 0 {
			continue
		}
		expiry := r.ContractedAt.AddDate(0, 0, r.PlanDurationDay)
		daysLeft := int(expiry.Sub(now).Hours() / 24)
		if daysLeft <= expiryWindowDays {
			out = append(out, models.FollowUpCandidate{Phone: r.Phone, Contracted: true, DaysRemaining: daysLeft})
		}
	}
	return out, nil
}

// Get returns a copy of the record for phone, for tests.
func (s *InMemoryStore) Get(phone string) (models.InteractionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[phone]
	if !ok {
		return models.InteractionRecord{}, false
	}
	return *r, true
}

func (s *InMemoryStore) Close() error { return nil }
