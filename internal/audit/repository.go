package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinovault/clinovault/internal/policy"
)

// Repository persists audit entries in the audit_entries table. The contract
// is deliberately append-plus-read: no UPDATE or DELETE statement exists
// here, and the table is expected to revoke those privileges from the
// application role.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one entry. Called synchronously with the decision it
// describes, before any field value is released to the caller.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var subjectType, subjectID *string
	if entry.SubjectType != "" {
		subjectType = &entry.SubjectType
	}
	if entry.SubjectID != "" {
		subjectID = &entry.SubjectID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, at, principal_id, roles, attribute, subject_type, subject_id, outcome, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, at, entry.PrincipalID, entry.Roles, entry.Attribute, subjectType, subjectID, string(entry.Outcome), entry.Reason)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Window returns one page of entries plus one extra row so the service can
// detect a following page.
func (r *Repository) Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(
		`SELECT id, at, principal_id, roles, attribute, COALESCE(subject_type, ''), COALESCE(subject_id, ''), outcome, reason
		 FROM audit_entries %s ORDER BY at DESC, id DESC OFFSET $%d LIMIT $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)
	return r.scanEntries(ctx, query, args)
}

// All returns every matching entry without paging, for exports.
func (r *Repository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(
		`SELECT id, at, principal_id, roles, attribute, COALESCE(subject_type, ''), COALESCE(subject_id, ''), outcome, reason
		 FROM audit_entries %s ORDER BY at DESC, id DESC`, where)
	return r.scanEntries(ctx, query, args)
}

// CountSince reports entry volume after the cutoff, used by the integrity
// scan job.
func (r *Repository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries WHERE at >= $1`, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: count since: %w", err)
	}
	return count, nil
}

// ArchiveBefore copies entries older than the cutoff into
// audit_entries_archive and removes them from the hot table only after the
// copy is committed, inside one transaction. The archive table carries the
// same append-only discipline.
func (r *Repository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: archive begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO audit_entries_archive
		 SELECT * FROM audit_entries WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: archive copy: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM audit_entries WHERE at < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("audit: archive trim: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: archive commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) scanEntries(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.At, &e.PrincipalID, &e.Roles, &e.Attribute, &e.SubjectType, &e.SubjectID, &outcome, &e.Reason); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Outcome = policy.Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

func buildWhere(filters Filters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("at <= $%d", filters.To)
	}
	if strings.TrimSpace(filters.PrincipalID) != "" {
		add("principal_id = $%d", strings.TrimSpace(filters.PrincipalID))
	}
	if strings.TrimSpace(filters.SubjectID) != "" {
		add("subject_id = $%d", strings.TrimSpace(filters.SubjectID))
	}
	if strings.TrimSpace(filters.Attribute) != "" {
		add("attribute = $%d", strings.TrimSpace(filters.Attribute))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
