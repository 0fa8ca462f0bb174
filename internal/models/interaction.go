// Package models defines persistence-facing structures for GymBot.
package models

import "time"

// InteractionRecord mirrors one row of the interacciones table, keyed by
// phone. Upserts are last-write-wins; writes for the same phone are
// serialized by the per-identifier session lock.
type InteractionRecord struct {
	Phone           string     `json:"telefono"`
	PlanInterested  string     `json:"plan_interesado,omitempty"`
	LastInteraction time.Time  `json:"ultima_interaccion"`
	Contracted      bool       `json:"contratado"`
	ContractedAt    *time.Time `json:"fecha_contratacion,omitempty"`
	PlanDurationDay int        `json:"plan_duracion,omitempty"`
	Experience      string     `json:"experiencia,omitempty"`
	LastMessageAt   *time.Time `json:"fecha_ultimo_mensaje,omitempty"`
}

// FollowUpCandidate is one contact selected by the reminder sweep: either a
// non-contracted user idle beyond the re-engagement threshold, or a
// contracted user whose plan is about to expire.
type FollowUpCandidate struct {
	Phone      string `json:"telefono"`
	Contracted bool   `json:"contratado"`
	// DaysRemaining is only meaningful when Contracted is true; it may be
	// negative if the plan already lapsed.
	DaysRemaining int `json:"dias_restantes"`
}
