package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// nilIfEmpty maps an empty plan string to SQL NULL so the interacciones
// column stays NULL until the user actually names a plan.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// collectFollowUpCandidates scans rows of (telefono, contratado,
// fecha_contratacion, plan_duracion) and applies the expiry window to
// contracted rows. The idle filter for non-contracted rows happens in SQL;
// expiry math happens here so both dialects share one implementation.
func collectFollowUpCandidates(rows *sql.Rows, now time.Time, expiryWindowDays int) ([]models.FollowUpCandidate, error) {
	var out []models.FollowUpCandidate
	for rows.Next() {
		var (
			phone        string
			contracted   bool
			contractedAt sql.NullTime
			duration     sql.NullInt64
		)
		if err := rows.Scan(&phone, &contracted, &contractedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan follow-up row: %w", err)
		}
		if !contracted {
			out = append(out, models.FollowUpCandidate{Phone: phone})
			continue
		}
		if !contractedAt.Valid || !duration.Valid || duration.Int64 <= 0 {
			continue
		}
		expiry := contractedAt.Time.AddDate(0, 0, int(duration.Int64))
		daysLeft := int(expiry.Sub(now).Hours() / 24)
		if daysLeft <= expiryWindowDays {
			out = append(out, models.FollowUpCandidate{Phone: phone, Contracted: true, DaysRemaining: daysLeft})
		}
	}
	return out, rows.Err()
}
