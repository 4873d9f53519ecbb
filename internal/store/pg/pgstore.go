package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"voluntra.org/internal/auth"
)

// Store implements the directory, permission source, event service and
// subscription updater over PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.Directory = (*Store)(nil)

// Open connects to Postgres with pool defaults tuned for the request hot
// path; adjust under load tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection. Used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// ProfileBySubject loads the profile attached to an identity-provider
// subject.
func (s *Store) ProfileBySubject(ctx context.Context, subjectID string) (*auth.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subject_id, org_id, role, is_active, display_name, created_at, updated_at
		from profiles where subject_id = $1`, subjectID)

	var (
		p       auth.Profile
		roleRaw string
	)
	if err := row.Scan(&p.ID, &p.SubjectID, &p.OrganizationID, &roleRaw, &p.IsActive, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrProfileNotFound
		}
		return nil, err
	}
	role, err := auth.ParseRole(roleRaw)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Role = role
	return &p, nil
}

// Organization loads one organization record.
func (s *Store) Organization(ctx context.Context, orgID string) (*auth.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, subscription_status, trial_ends_at, created_at, updated_at
		from organizations where id = $1`, orgID)

	var (
		org       auth.Organization
		statusRaw string
		trialEnds sql.NullTime
	)
	if err := row.Scan(&org.ID, &org.Name, &statusRaw, &trialEnds, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	status, err := auth.ParseSubscriptionStatus(statusRaw)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", org.ID, err)
	}
	org.SubscriptionStatus = status
	if trialEnds.Valid {
		t := trialEnds.Time
		org.TrialEndsAt = &t
	}
	return &org, nil
}

// ResourceOrg resolves the owning organization of an id-addressed resource.
// Each tenant-scoped table carries exactly one org_id column.
func (s *Store) ResourceOrg(ctx context.Context, resourceType, resourceID string) (string, error) {
	var query string
	switch resourceType {
	case "event":
		query = `select org_id from events where id = $1`
	default:
		return "", fmt.Errorf("%w: unregistered resource type %s", auth.ErrNotFound, resourceType)
	}

	var orgID string
	if err := s.db.QueryRowContext(ctx, query, resourceID).Scan(&orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", auth.ErrNotFound
		}
		return "", err
	}
	return orgID, nil
}

// SetSubscription applies a billing-processor state change.
func (s *Store) SetSubscription(ctx context.Context, orgID string, status auth.SubscriptionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		update organizations set subscription_status = $2, updated_at = now()
		where id = $1`, orgID, string(status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
