package relationship

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed care team membership.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OnCareTeam reports whether the provider is currently assigned to the
// patient. Ended assignments do not count.
func (r *Repository) OnCareTeam(ctx context.Context, providerID, patientID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM care_team_assignments
			WHERE provider_id = $1 AND patient_id = $2 AND ended_at IS NULL
		)`, providerID, patientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("relationship: care team lookup: %w", err)
	}
	return exists, nil
}

// Assign adds the provider to the patient's care team.
func (r *Repository) Assign(ctx context.Context, providerID, patientID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO care_team_assignments (provider_id, patient_id, started_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (provider_id, patient_id) DO UPDATE SET ended_at = NULL`,
		providerID, patientID)
	if err != nil {
		return fmt.Errorf("relationship: assign: %w", err)
	}
	return nil
}

// Unassign ends the provider's assignment without deleting history.
func (r *Repository) Unassign(ctx context.Context, providerID, patientID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE care_team_assignments SET ended_at = NOW()
		 WHERE provider_id = $1 AND patient_id = $2 AND ended_at IS NULL`,
		providerID, patientID)
	if err != nil {
		return fmt.Errorf("relationship: unassign: %w", err)
	}
	return nil
}
